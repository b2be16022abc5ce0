package policy

import (
	"container/list"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/agoradao/agora/pkg/domain"
)

//go:embed authz.rego
var defaultModule string

// DefaultModules returns the bundled authorization module.
func DefaultModules() map[string]string {
	return map[string]string{"authz.rego": defaultModule}
}

// EngineOptions control OPA engine construction and runtime behaviour.
type EngineOptions struct {
	// Entrypoint is the decision path (e.g. "agora/authz/decision").
	Entrypoint string
	// Modules contains the Rego modules to load. Empty selects DefaultModules.
	Modules map[string]string
	// CacheMaxEntries bounds the decision cache size (LRU). Zero selects the
	// default size; negative disables caching entirely.
	CacheMaxEntries int
	Logger          *slog.Logger
}

// Engine evaluates authorization decisions using an embedded OPA instance.
type Engine struct {
	entrypoint string
	cache      *decisionCache
	prepared   rego.PreparedEvalQuery
	logger     *slog.Logger
}

var _ Authorizer = (*Engine)(nil)

const (
	defaultEntrypoint    = "agora/authz/decision"
	defaultCacheCapacity = 256
)

// NewEngine parses and compiles the modules and prepares the entrypoint query.
func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	entry := strings.TrimSpace(opts.Entrypoint)
	if entry == "" {
		entry = defaultEntrypoint
	}
	modules := opts.Modules
	if len(modules) == 0 {
		modules = DefaultModules()
	}

	maxEntries := opts.CacheMaxEntries
	switch {
	case maxEntries == 0:
		maxEntries = defaultCacheCapacity
	case maxEntries < 0:
		maxEntries = 0
	}
	var cache *decisionCache
	if maxEntries > 0 {
		cache = newDecisionCache(maxEntries)
	}

	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)

	regoOpts := []func(*rego.Rego){rego.Query("data." + strings.ReplaceAll(entry, "/", "."))}
	for _, name := range names {
		module, err := ast.ParseModuleWithOpts(name, modules[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("parse rego module %q: %w", name, err)
		}
		regoOpts = append(regoOpts, rego.ParsedModule(module))
	}

	prepared, err := rego.New(regoOpts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile rego modules: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{entrypoint: entry, cache: cache, prepared: prepared, logger: logger}, nil
}

// Authorize implements Authorizer.
func (e *Engine) Authorize(ctx context.Context, input Input) (Decision, error) {
	if strings.TrimSpace(string(input.Operation)) == "" {
		return Decision{}, errors.New("policy input requires an operation")
	}

	capabilities := normalizeCapabilities(input.Capabilities)
	cacheKey, shouldCache := e.cacheKey(input, capabilities)
	if shouldCache {
		if cached, ok := e.cache.Get(cacheKey); ok {
			return cached, nil
		}
	}

	payload := map[string]any{
		"operation":    string(input.Operation),
		"identity":     input.Identity.Hex(),
		"capabilities": capabilities,
	}
	results, err := e.prepared.Eval(ctx, rego.EvalInput(payload))
	if err != nil {
		return Decision{}, fmt.Errorf("opa decision: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{}, fmt.Errorf("opa decision: %s is undefined", e.entrypoint)
	}

	decisionPayload, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{}, fmt.Errorf("opa decision: unexpected result type %T", results[0].Expressions[0].Value)
	}
	decision, err := parseDecision(decisionPayload)
	if err != nil {
		return Decision{}, err
	}
	e.logger.DebugContext(ctx, "authorization evaluated",
		"operation", input.Operation,
		"identity", input.Identity.Hex(),
		"allow", decision.Allow,
		"reason", decision.Reason,
	)

	if shouldCache {
		e.cache.Add(cacheKey, decision)
	}
	return decision, nil
}

// cacheKey hashes the operation and capability set; the identity itself never
// changes the outcome so it is left out.
func (e *Engine) cacheKey(input Input, capabilities []string) (string, bool) {
	if e.cache == nil {
		return "", false
	}
	h := sha256.New()
	writeCacheKeyField(h, string(input.Operation))
	writeCacheKeyField(h, strings.Join(capabilities, ","))
	return hex.EncodeToString(h.Sum(nil)), true
}

// writeCacheKeyField writes a field to the hash followed by a null delimiter.
func writeCacheKeyField(h hash.Hash, value string) {
	h.Write([]byte(value))
	h.Write([]byte{0})
}

func normalizeCapabilities(input []domain.Capability) []string {
	out := make([]string, 0, len(input))
	for _, c := range input {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}

func parseDecision(payload map[string]any) (Decision, error) {
	allow, ok := payload["allow"].(bool)
	if !ok {
		return Decision{}, fmt.Errorf("opa decision: allow must be bool, got %T", payload["allow"])
	}
	required, _ := payload["required"].(string)
	reason, _ := payload["reason"].(string)
	return Decision{Allow: allow, Required: domain.Capability(required), Reason: reason}, nil
}

type decisionCache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[string]*list.Element
}

type cacheItem struct {
	key   string
	value Decision
}

func newDecisionCache(capacity int) *decisionCache {
	return &decisionCache{
		max:     capacity,
		order:   list.New(),
		entries: make(map[string]*list.Element, capacity),
	}
}

func (c *decisionCache) Get(key string) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return Decision{}, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(cacheItem).value, true
}

func (c *decisionCache) Add(key string, value Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value = cacheItem{key: key, value: value}
		c.order.MoveToFront(elem)
		return
	}
	c.entries[key] = c.order.PushFront(cacheItem{key: key, value: value})
	if c.order.Len() <= c.max {
		return
	}
	if tail := c.order.Back(); tail != nil {
		c.order.Remove(tail)
		delete(c.entries, tail.Value.(cacheItem).key)
	}
}

func (c *decisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
