package classifier

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

// Config holds the tunables of the two-tier classifier.
type Config struct {
	ConfidenceThreshold float64       `envconfig:"CONFIDENCE_THRESHOLD" split_words:"true" default:"0.45"`
	MaxClassifyChars    int           `envconfig:"MAX_CLASSIFY_CHARS" split_words:"true" default:"8000"`
	SemanticTimeout     time.Duration `envconfig:"SEMANTIC_TIMEOUT" split_words:"true" default:"15s"`
	CacheTTL            time.Duration `envconfig:"CACHE_TTL" split_words:"true" default:"5m"`
}

const (
	quickRouteConfidence = 0.9
	syntheticConfidence  = 0.1
)

// Option customizes a Classifier.
type Option func(*Classifier)

func WithRules(rules []Rule) Option {
	return func(c *Classifier) { c.rules = rules }
}

func WithPipelines(table PipelineTable) Option {
	return func(c *Classifier) { c.pipelines = table }
}

func WithCatalog(catalog []contractx.RoleInfo) Option {
	return func(c *Classifier) { c.catalog = catalog }
}

// Classifier produces a RoutingDecision per request: a deterministic
// quick-route tier first, then the external semantic capability, then
// pipeline expansion by table lookup.
type Classifier struct {
	rules     []Rule
	pipelines PipelineTable
	catalog   []contractx.RoleInfo
	semantic  contractx.SemanticClassifier

	threshold float64
	maxChars  int
	timeout   time.Duration
	cache     *gocache.Cache
}

func New(cfg Config, semantic contractx.SemanticClassifier, opts ...Option) *Classifier {
	c := &Classifier{
		rules:     DefaultRules(),
		pipelines: DefaultPipelines(),
		catalog:   DefaultRoleCatalog(),
		semantic:  semantic,
		threshold: cfg.ConfidenceThreshold,
		maxChars:  cfg.MaxClassifyChars,
		timeout:   cfg.SemanticTimeout,
	}
	if c.maxChars <= 0 {
		c.maxChars = 8000
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c.cache = gocache.New(ttl, 2*ttl)

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Catalog returns the declared role catalog.
func (c *Classifier) Catalog() []contractx.RoleInfo {
	return append([]contractx.RoleInfo(nil), c.catalog...)
}

// Pipeline returns the declared stage sequence for a target role.
func (c *Classifier) Pipeline(role contractx.AgentRole) []contractx.AgentRole {
	return append([]contractx.AgentRole(nil), c.pipelines[role]...)
}

// Classify never returns a partial decision: it either produces a complete
// RoutingDecision or ErrClassification when both tiers failed.
func (c *Classifier) Classify(ctx context.Context, req contractx.Request, sctx contractx.SessionContext) (contractx.RoutingDecision, error) {
	normalized := normalize(req.Text)
	hasDocuments := req.HasDocuments() || sctx.HasDocuments()

	if normalized == "" {
		return c.expand(
			contractx.RoleGeneralKnowledge,
			syntheticConfidence,
			contractx.SourceQuickRoute,
			"empty request text, synthetic default",
		), nil
	}

	for _, rule := range c.rules {
		if rule.matches(normalized, hasDocuments) {
			log.Debug().Str("rule", rule.Name).Str("session_id", req.SessionID).Msg("quick-route matched")
			return c.expand(rule.Role, quickRouteConfidence, contractx.SourceQuickRoute, rule.Rationale), nil
		}
	}

	return c.classifySemantic(ctx, req, sctx, hasDocuments)
}

func (c *Classifier) classifySemantic(
	ctx context.Context,
	req contractx.Request,
	sctx contractx.SessionContext,
	hasDocuments bool,
) (contractx.RoutingDecision, error) {
	if c.semantic == nil {
		return contractx.RoutingDecision{}, fmt.Errorf("%w: no rule matched and no semantic capability configured", contractx.ErrClassification)
	}

	// Oversized text is truncated for classification only; pipeline stages
	// still receive the full original request. The cut backs off to a rune
	// boundary so the capability never sees invalid UTF-8.
	text := req.Text
	if len(text) > c.maxChars {
		cut := c.maxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	// Cached decisions are scoped per session: the capability also sees the
	// session's recent history, so one session's decision must not be replayed
	// for another.
	key := decisionCacheKey(req.SessionID, text, hasDocuments)
	if cached, ok := c.cache.Get(key); ok {
		if sd, ok := cached.(contractx.SemanticDecision); ok {
			return c.fromSemantic(sd), nil
		}
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sd, err := c.semantic.Classify(cctx, text, c.Catalog(), sctx)
	if err != nil {
		return contractx.RoutingDecision{}, fmt.Errorf("%w: semantic tier: %v", contractx.ErrClassification, err)
	}

	c.cache.Set(key, sd, gocache.DefaultExpiration)
	return c.fromSemantic(sd), nil
}

func (c *Classifier) fromSemantic(sd contractx.SemanticDecision) contractx.RoutingDecision {
	role := sd.Role
	rationale := strings.TrimSpace(sd.Rationale)

	if !c.knownRole(role) {
		role = contractx.RoleGeneralKnowledge
		rationale = fmt.Sprintf("semantic tier returned unknown role %q, defaulting to general knowledge", sd.Role)
	} else if sd.Confidence < c.threshold {
		role = contractx.RoleGeneralKnowledge
		rationale = fmt.Sprintf("semantic confidence %.2f below threshold %.2f, defaulting to general knowledge", sd.Confidence, c.threshold)
	}

	if rationale == "" {
		rationale = "semantic classification"
	}

	// An explicit pipeline from the capability wins over the table when every
	// role in it is known.
	if role == sd.Role && len(sd.Pipeline) > 1 && c.knownRoles(sd.Pipeline) {
		return contractx.RoutingDecision{
			Primary:    sd.Pipeline[0],
			Target:     role,
			Pipeline:   append([]contractx.AgentRole(nil), sd.Pipeline...),
			Confidence: sd.Confidence,
			Source:     contractx.SourceSemanticClassifier,
			Rationale:  rationale,
		}
	}

	return c.expand(role, sd.Confidence, contractx.SourceSemanticClassifier, rationale)
}

// expand turns a target role into the full declared pipeline by table lookup.
func (c *Classifier) expand(
	target contractx.AgentRole,
	confidence float64,
	source contractx.DecisionSource,
	rationale string,
) contractx.RoutingDecision {
	stages := c.pipelines[target]
	decision := contractx.RoutingDecision{
		Primary:    target,
		Target:     target,
		Confidence: confidence,
		Source:     source,
		Rationale:  rationale,
	}
	if len(stages) > 1 {
		decision.Pipeline = append([]contractx.AgentRole(nil), stages...)
		decision.Primary = stages[0]
	}
	return decision
}

func (c *Classifier) knownRole(role contractx.AgentRole) bool {
	for _, info := range c.catalog {
		if info.Role == role {
			return true
		}
	}
	return false
}

func (c *Classifier) knownRoles(roles []contractx.AgentRole) bool {
	for _, role := range roles {
		if !c.knownRole(role) {
			return false
		}
	}
	return true
}

func decisionCacheKey(sessionID, text string, hasDocuments bool) string {
	sum := sha1.Sum([]byte(text))
	return fmt.Sprintf("%s:%s:%t", sessionID, hex.EncodeToString(sum[:]), hasDocuments)
}
