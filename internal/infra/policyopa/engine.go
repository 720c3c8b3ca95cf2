// Package policyopa authorizes operator actions with an embedded rego policy.
package policyopa

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"vermietify/internal/domain"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"
)

const defaultQuery = "data.vermietify.authz.decision"

//go:embed policy/authz.rego
var defaultPolicy string

type Engine struct {
	query      rego.PreparedEvalQuery
	policyHash string
	logger     *zap.Logger
}

func NewEngine(ctx context.Context, logger *zap.Logger) (*Engine, error) {
	return NewEngineFromSource(ctx, "authz.rego", defaultPolicy, logger)
}

func NewEngineFromSource(ctx context.Context, name, source string, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	r := rego.New(
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		rego.Module(name, source),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(source))
	return &Engine{
		query:      prepared,
		policyHash: hex.EncodeToString(sum[:]),
		logger:     logger,
	}, nil
}

func (e *Engine) PolicyHash() string {
	return e.policyHash
}

func (e *Engine) Evaluate(ctx context.Context, input domain.AuthzInput) (domain.AuthzDecision, error) {
	if e == nil {
		return domain.AuthzDecision{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.AuthzDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.AuthzDecision{}, errors.New("empty policy result")
	}
	decision, err := decodeDecision(results[0].Expressions[0].Value)
	if err != nil {
		return domain.AuthzDecision{}, err
	}
	sort.Slice(decision.Deny, func(i, j int) bool {
		if decision.Deny[i].Code == decision.Deny[j].Code {
			return decision.Deny[i].Message < decision.Deny[j].Message
		}
		return decision.Deny[i].Code < decision.Deny[j].Code
	})
	return decision, nil
}

// Require implements domain.Authorizer.
func (e *Engine) Require(ctx context.Context, principal domain.Principal, permission string) error {
	if principal.Subject == "" {
		return domain.ErrUnauthorized
	}
	decision, err := e.Evaluate(ctx, principal.AuthzInput(permission))
	if err != nil {
		return fmt.Errorf("evaluate policy: %w", err)
	}
	if decision.Allow {
		return nil
	}
	code := "FORBIDDEN"
	if len(decision.Deny) > 0 {
		code = decision.Deny[0].Code
	}
	e.logger.Warn("denied",
		zap.String("subject", principal.Subject),
		zap.String("permission", permission),
		zap.String("code", code),
	)
	return &domain.AuthzError{Code: code, Permission: permission, Err: domain.ErrForbidden}
}

func decodeDecision(value any) (domain.AuthzDecision, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.AuthzDecision{}, err
	}
	var decision domain.AuthzDecision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return domain.AuthzDecision{}, err
	}
	return decision, nil
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}
