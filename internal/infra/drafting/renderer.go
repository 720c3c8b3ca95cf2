package drafting

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"

	"vermietify/internal/domain"
)

const payloadNamespace = "urn:vermietify:submission:v1"

// XMLRenderer builds the transmission envelope. Fields keep their drafted order.
type XMLRenderer struct{}

type xmlSubmission struct {
	XMLName   xml.Name   `xml:"Submission"`
	Namespace string     `xml:"xmlns,attr"`
	ID        string     `xml:"id,attr"`
	FormType  string     `xml:"formType,attr"`
	TaxYear   int        `xml:"taxYear,attr"`
	Mode      string     `xml:"mode,attr"`
	Building  xmlRef     `xml:"Building"`
	LegalForm string     `xml:"LegalForm,omitempty"`
	Fields    []xmlField `xml:"Fields>Field"`
	Issues    []xmlIssue `xml:"Issues>Issue,omitempty"`
}

type xmlRef struct {
	ID string `xml:"id,attr"`
}

type xmlField struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlIssue struct {
	Field    string `xml:"field,attr"`
	Severity string `xml:"severity,attr"`
	Message  string `xml:",chardata"`
}

func (XMLRenderer) Render(sub domain.Submission) (string, error) {
	doc := xmlSubmission{
		Namespace: payloadNamespace,
		ID:        sub.ID,
		FormType:  sub.FormType,
		TaxYear:   sub.TaxYear,
		Mode:      string(sub.Mode),
		Building:  xmlRef{ID: sub.BuildingID},
		LegalForm: sub.LegalForm,
		Fields:    make([]xmlField, 0, len(sub.FormData)),
	}
	for _, field := range sub.FormData {
		value, err := formatValue(field.Value)
		if err != nil {
			return "", fmt.Errorf("render field %s: %w", field.Name, err)
		}
		doc.Fields = append(doc.Fields, xmlField{Name: field.Name, Value: value})
	}
	for _, issue := range sub.ValidationErrors {
		doc.Issues = append(doc.Issues, xmlIssue{Field: issue.Field, Severity: string(issue.Severity), Message: issue.Message})
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return xml.Header + string(out), nil
}

func formatValue(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}
