package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/pageguard"
	"github.com/oarkflow/pageguard/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "check":
		handleCheck()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("pageguard-config - Configuration tool for pageguard")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pageguard-config convert <input> <output>      - Convert between formats")
	fmt.Println("  pageguard-config validate <file>               - Validate configuration")
	fmt.Println("  pageguard-config stats <file>                  - Show configuration statistics")
	fmt.Println("  pageguard-config check <file> <path> [email]   - Evaluate a path against the config")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: pageguard-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := loadConfig(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: pageguard-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	stats := cfg.Stats()
	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version:    %d\n", cfg.Version)
	fmt.Printf("  Categories: %d\n", stats.Categories)
	fmt.Printf("  Routes:     %d\n", stats.Routes)
	fmt.Printf("  Exceptions: %d\n", stats.Exceptions)
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: pageguard-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	stat, _ := os.Stat(filename)
	stats := cfg.Stats()

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	fmt.Println("Components:")
	fmt.Printf("  Categories:     %d\n", stats.Categories)
	fmt.Printf("  Routes:         %d\n", stats.Routes)
	fmt.Printf("  Dynamic routes: %d\n", stats.DynamicRoutes)
	fmt.Printf("  Guarded routes: %d\n", stats.GuardedRoutes)
	fmt.Printf("  Exceptions:     %d\n", stats.Exceptions)
	fmt.Println()

	if cfg.Maintenance.Enabled {
		fmt.Println("Maintenance mode is ENABLED")
		fmt.Println()
	}

	fmt.Println("Redirects:")
	fmt.Printf("  Login:       %s\n", cfg.Redirects.Login)
	fmt.Printf("  Forbidden:   %s\n", cfg.Redirects.Forbidden)
	fmt.Printf("  NotFound:    %s\n", cfg.Redirects.NotFound)
	fmt.Printf("  Maintenance: %s\n", cfg.Redirects.Maintenance)
}

func handleCheck() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: pageguard-config check <file> <path> [email]")
		os.Exit(1)
	}

	filename := os.Args[2]
	path := os.Args[3]
	email := ""
	if len(os.Args) > 4 {
		email = os.Args[4]
	}

	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	engine, err := pageguard.NewEngine(cfg, stores.NewMemoryPolicyStore())
	if err != nil {
		fmt.Printf("Error building engine: %v\n", err)
		os.Exit(1)
	}

	decision := engine.ExplainRequest(context.Background(), &pageguard.ExplainRequest{
		Path:  path,
		Email: email,
	})

	out, _ := json.MarshalIndent(decision, "", "  ")
	fmt.Println(string(out))
	if !decision.Allowed {
		os.Exit(2)
	}
}

func loadConfig(filename string) (*pageguard.SiteConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	loader := pageguard.NewConfigLoader()
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".yaml", ".yml":
		return loader.LoadYAML(data)
	case ".json":
		return loader.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func saveConfig(cfg *pageguard.SiteConfig, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
