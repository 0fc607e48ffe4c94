package enrichment

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jonesrussell/darc-connector/internal/config"
	"github.com/jonesrussell/darc-connector/internal/logger"
)

// Converter turns a text input file into intelligence artifacts on disk.
// The stage correlates the output files by report id.
type Converter interface {
	Convert(ctx context.Context, inputPath, reportName, reportID string) error
}

// Txt2StixConverter runs the txt2stix script as a subprocess. The script
// writes bundle--<report id>.json and data--<report id>.json into the
// configured output directory on success.
type Txt2StixConverter struct {
	cfg    *config.EnrichmentConfig
	logger logger.Logger
}

// NewTxt2StixConverter creates a subprocess-backed converter.
func NewTxt2StixConverter(cfg *config.EnrichmentConfig, log logger.Logger) *Txt2StixConverter {
	return &Txt2StixConverter{cfg: cfg, logger: log}
}

// Convert executes the converter script and waits for it to exit. Output
// artifacts may lag behind process exit; the caller polls for them.
func (c *Txt2StixConverter) Convert(ctx context.Context, inputPath, reportName, reportID string) error {
	runCtx, cancel := context.WithTimeout(ctx, c.cfg.ConverterTimeout)
	defer cancel()

	args := []string{
		c.cfg.Script,
		"--relationship_mode", c.cfg.RelationshipMode,
		"--ai_settings_relationships", c.cfg.RelationshipModel,
		"--input_file", inputPath,
		"--name", reportName,
		"--tlp_level", c.cfg.TLPLevel,
		"--confidence", strconv.Itoa(c.cfg.Confidence),
		"--use_extractions", strings.Join(c.cfg.Extractions, ","),
		"--ai_settings_extractions", c.cfg.ExtractionModel,
		"--ai_content_check_provider", c.cfg.ContentCheckModel,
		"--report_id", reportID,
	}

	cmd := exec.CommandContext(runCtx, c.cfg.Command, args...)
	cmd.Dir = c.cfg.WorkingDir
	cmd.Env = c.environment()

	c.logger.Info("executing converter",
		logger.String("report_id", reportID),
		logger.String("script", c.cfg.Script))

	if output, runErr := cmd.CombinedOutput(); runErr != nil {
		return fmt.Errorf("converter %s: %w: %s", reportID, runErr, truncate(string(output), 512))
	}
	return nil
}

// environment is the parent environment plus the converter's credentials and
// model tunables.
func (c *Txt2StixConverter) environment() []string {
	return append(os.Environ(),
		"DEEPSEEK_API_KEY="+c.cfg.APIKey,
		"INPUT_TOKEN_LIMIT="+strconv.Itoa(c.cfg.InputTokenLimit),
		"TEMPERATURE="+strconv.FormatFloat(c.cfg.Temperature, 'f', -1, 64),
		"CTIBUTLER_BASE_URL="+c.cfg.CTIButlerURL,
		"CTIBUTLER_API_KEY="+c.cfg.CTIButlerAPIKey,
		"VULMATCH_BASE_URL="+c.cfg.VulmatchURL,
		"VULMATCH_API_KEY="+c.cfg.VulmatchAPIKey,
	)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
