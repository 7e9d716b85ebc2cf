package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/Brownie44l1/plastic-classifier/internal/camera"
	"github.com/Brownie44l1/plastic-classifier/internal/config"
	"github.com/Brownie44l1/plastic-classifier/internal/console"
	"github.com/Brownie44l1/plastic-classifier/internal/model"
	"github.com/Brownie44l1/plastic-classifier/internal/recycling"
	"github.com/Brownie44l1/plastic-classifier/internal/scanner"
	"github.com/Brownie44l1/plastic-classifier/pkg/logger"
)

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mainImpl() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.NewConsole(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	var opts []model.ServerOption
	if cfg.OnnxRuntimeLib != "" {
		opts = append(opts, model.WithSharedLibrary(cfg.OnnxRuntimeLib))
	}
	store := model.NewONNXStore(cfg.ModelPath, cfg.MetadataPath, opts...)
	defer store.Close()

	catalog, err := recycling.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	sc, err := scanner.New(store, catalog, log, scanner.Config{Threshold: cfg.ConfidenceThreshold, MaxImagePixels: cfg.MaxImagePixels})
	if err != nil {
		return err
	}

	sh := console.New(sc, func() ([]byte, error) { return camera.Capture(cfg.CameraDevice) }, os.Stdout)

	if _, err := store.Load(); err != nil {
		log.Warn("model unavailable", zap.Error(err))
		sh.PrintError(err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = rl.Close()
	}()

	sh.PrintScreen()
	ctx := context.Background()
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			break
		}
		if !sh.Execute(ctx, strings.TrimSpace(line)) {
			break
		}
	}
	return nil
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("scan"),
	readline.PcItem("classify", readline.PcItemDynamic(listImages)),
	readline.PcItem("capture"),
	readline.PcItem("again"),
	readline.PcItem("back"),
	readline.PcItem("status"),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

// listImages offers JPEG and PNG files in the working directory.
func listImages(string) []string {
	entries, err := os.ReadDir(".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg") || strings.HasSuffix(name, ".png") {
			names = append(names, e.Name())
		}
	}
	return names
}
