package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/chayanin/docrouter/agent/contract"
	openrouterx "github.com/chayanin/docrouter/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	CoordinatorModel string `envconfig:"COORDINATOR_MODEL" split_words:"true"`
	GeneralModel     string `envconfig:"GENERAL_MODEL" split_words:"true"`
	ExtractorModel   string `envconfig:"EXTRACTOR_MODEL" split_words:"true"`
	ComparisonModel  string `envconfig:"COMPARISON_MODEL" split_words:"true"`
	QuestionModel    string `envconfig:"QUESTION_MODEL" split_words:"true"`
	AnalystModel     string `envconfig:"ANALYST_MODEL" split_words:"true"`

	CoordinatorTemperature float32 `envconfig:"COORDINATOR_TEMPERATURE" split_words:"true" default:"-1"`
	GeneralTemperature     float32 `envconfig:"GENERAL_TEMPERATURE" split_words:"true" default:"-1"`
	ExtractorTemperature   float32 `envconfig:"EXTRACTOR_TEMPERATURE" split_words:"true" default:"-1"`
	ComparisonTemperature  float32 `envconfig:"COMPARISON_TEMPERATURE" split_words:"true" default:"-1"`
	QuestionTemperature    float32 `envconfig:"QUESTION_TEMPERATURE" split_words:"true" default:"-1"`
	AnalystTemperature     float32 `envconfig:"ANALYST_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrInvalidRequest)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrInvalidRequest)
	}
	return nil
}

// OpenRouterFor resolves the model settings for one role: the per-role
// override when set, the shared default otherwise.
func (c Config) OpenRouterFor(role contractx.AgentRole) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override, overrideTemp := c.overridesFor(role)
	if v := strings.TrimSpace(override); v != "" {
		modelName = v
	}
	if overrideTemp >= 0 {
		temp = overrideTemp
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

func (c Config) overridesFor(role contractx.AgentRole) (string, float32) {
	switch role {
	case contractx.RoleCoordinator:
		return c.CoordinatorModel, c.CoordinatorTemperature
	case contractx.RoleGeneralKnowledge:
		return c.GeneralModel, c.GeneralTemperature
	case contractx.RoleInformationExtractor:
		return c.ExtractorModel, c.ExtractorTemperature
	case contractx.RoleDocumentComparison:
		return c.ComparisonModel, c.ComparisonTemperature
	case contractx.RoleQuestionGenerator:
		return c.QuestionModel, c.QuestionTemperature
	case contractx.RoleComparisonAnalyst:
		return c.AnalystModel, c.AnalystTemperature
	default:
		return "", -1
	}
}
