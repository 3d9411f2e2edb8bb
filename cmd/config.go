package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mathtutor/chat-gateway/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the chat gateway configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	Long:  `Initialize configuration by prompting for provider credentials.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the current configuration for errors.`,
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	color.Blue("Math Tutor Gateway Configuration Setup")
	color.Yellow("Leave a key blank to keep reading it from the environment instead.")

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("\nGemini API Key: ")
	geminiKey, _ := reader.ReadString('\n')
	geminiKey = strings.TrimSpace(geminiKey)

	fmt.Print("OpenAI API Key: ")
	openaiKey, _ := reader.ReadString('\n')
	openaiKey = strings.TrimSpace(openaiKey)

	cfg := &config.Config{
		Host: config.DefaultHost,
		Port: config.DefaultPort,
		Gemini: config.GeminiConfig{
			APIKey: geminiKey,
		},
		OpenAI: config.OpenAIConfig{
			APIKey: openaiKey,
		},
	}

	if err := cfgMgr.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	color.Green("Configuration saved successfully to: %s", cfgMgr.GetPath())
	color.Cyan("You can now start the gateway with: mtgw start")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration found. Run 'mtgw config init' to create one.")
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	color.Blue("Current Configuration:")
	fmt.Printf("  %-15s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-15s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-15s: %s\n", "Gemini Key", maskString(cfg.Gemini.APIKey))
	fmt.Printf("  %-15s: %s\n", "OpenAI Key", maskString(cfg.OpenAI.APIKey))
	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())

	if len(cfg.OpenAI.Deployments) > 0 {
		fmt.Println("\nOpenAI Deployments:")

		for model, deployment := range cfg.OpenAI.Deployments {
			fmt.Printf("  %s -> %s\n", model, deployment)
		}
	}

	if cfg.SystemPrompt != "" {
		fmt.Println("\nCustom system prompt is set.")
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var problems []string

	if cfg.Gemini.APIKey == "" {
		problems = append(problems, "Gemini API key is not set (gemini models will be rejected)")
	}

	if cfg.OpenAI.APIKey == "" {
		problems = append(problems, "OpenAI API key is not set (gpt models will be rejected)")
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d is out of range", cfg.Port))
	}

	if len(problems) > 0 {
		color.Yellow("Configuration warnings:")

		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}

		if cfg.Gemini.APIKey == "" && cfg.OpenAI.APIKey == "" {
			return fmt.Errorf("no provider credentials configured")
		}

		return nil
	}

	color.Green("Configuration is valid!")

	return nil
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}

	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}

	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
