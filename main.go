package main

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chayanin/docrouter/agent/agents/orchestrator"
	"github.com/chayanin/docrouter/agent/agents/specialist"
	"github.com/chayanin/docrouter/agent/classifier"
	contractx "github.com/chayanin/docrouter/agent/contract"
	llmx "github.com/chayanin/docrouter/agent/llm"
	"github.com/chayanin/docrouter/agent/pipeline"
	registryx "github.com/chayanin/docrouter/agent/registry"
	statex "github.com/chayanin/docrouter/agent/state"
	toolx "github.com/chayanin/docrouter/agent/tool"
	configx "github.com/chayanin/docrouter/pkg/config"
	_ "github.com/chayanin/docrouter/pkg/logger/autoload"
)

type AppConfig struct {
	SessionTTL       time.Duration `envconfig:"SESSION_TTL" split_words:"true" default:"24h"`
	EvictionSchedule string        `envconfig:"EVICTION_SCHEDULE" split_words:"true" default:"@every 1h"`

	// Optional Upstash-style Redis REST mirror for session durability.
	RedisURL   string `envconfig:"REDIS_URL" split_words:"true"`
	RedisToken string `envconfig:"REDIS_TOKEN" split_words:"true"`
}

func main() {
	ctx := context.Background()

	appCfg := configx.MustNew[AppConfig]("")
	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	clsCfg := configx.MustNew[classifier.Config]("CLASSIFIER")
	execCfg := configx.MustNew[pipeline.Config]("PIPELINE")

	storeOpts := []statex.StoreOption{statex.WithIdleTTL(appCfg.SessionTTL)}
	if strings.TrimSpace(appCfg.RedisURL) != "" {
		mirror, err := statex.NewRedisMirror(statex.RedisMirrorConfig{
			URL:   appCfg.RedisURL,
			Token: appCfg.RedisToken,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("configure session mirror")
		}
		storeOpts = append(storeOpts, statex.WithMirror(mirror))
	}
	store := statex.NewStore(storeOpts...)

	janitor, err := statex.StartJanitor(store, appCfg.EvictionSchedule, appCfg.SessionTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("start session janitor")
	}
	defer janitor.Stop()

	agents, err := specialist.NewAgentSet(ctx, *llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build agent set")
	}

	policy := toolx.NewPolicy(toolx.DefaultTable())
	catalog := toolx.NewCatalog(nil) // no document extraction capability wired in this binary
	reg := registryx.New(policy, catalog)
	if err := agents.Register(reg); err != nil {
		log.Fatal().Err(err).Msg("register agents")
	}

	cls := classifier.New(*clsCfg, agents.Semantic())
	exec := pipeline.NewExecutor(*execCfg, reg, pipeline.WithCursorStore(store))

	coordinator, err := orchestrator.New(store, cls, reg, exec, policy)
	if err != nil {
		log.Fatal().Err(err).Msg("build coordinator")
	}

	report := coordinator.HealthCheck()
	log.Info().
		Str("health", string(report.Overall)).
		Int("agents", len(report.Agents)).
		Msg("coordinator ready")

	result, err := coordinator.Process(ctx, contractx.Request{
		SessionID: "demo",
		Text:      "What is 2 + 2?",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("process demo request")
	}
	log.Info().
		Str("status", string(result.Status)).
		Str("target", string(result.Decision.Target)).
		Str("answer", result.FinalOutput.Text).
		Msg("demo request processed")
}
