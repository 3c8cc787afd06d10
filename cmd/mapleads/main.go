package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"mapleads/internal/browser"
	"mapleads/internal/config"
	"mapleads/internal/enrich"
	"mapleads/internal/scrape"
	"mapleads/internal/workbook"
)

// CLI flags layer on top of the environment-derived configuration: a flag
// left at its zero value leaves the config untouched.
type CLI struct {
	Debug    bool `help:"Enable debug logging." default:"false"`
	FastTest bool `help:"Shrink scroll attempts and listing cap for a quick smoke run." default:"false"`

	Scrape ScrapeCmd `cmd:"" default:"1" help:"Search each industry and collect website-less leads into a workbook."`
	Enrich EnrichCmd `cmd:"" help:"Fill in contact person and phone for a previously scraped workbook."`
}

type ScrapeCmd struct {
	Industries string `help:"Path to the line-delimited industries file." short:"i"`
	Proxies    string `help:"Path to the proxies file." short:"p"`
	Out        string `help:"Output directory for the leads workbook." short:"o"`
	Headful    bool   `help:"Run the browser with a visible window." default:"false"`
	UseProxies bool   `help:"Route the browser through a rotating proxy." default:"false"`
}

type EnrichCmd struct {
	File string `arg:"" help:"Path to the leads workbook to enrich." type:"existingfile"`
	Out  string `help:"Directory for progress checkpoints and backups." short:"o"`
}

func (c *ScrapeCmd) Run(cli *CLI) error {
	cfg := config.Load()
	if cli.FastTest {
		cfg.ApplyFastTest()
	}
	if c.Industries != "" {
		cfg.IndustriesFile = c.Industries
	}
	if c.Proxies != "" {
		cfg.ProxiesFile = c.Proxies
	}
	if c.Out != "" {
		cfg.OutputDir = c.Out
	}
	if c.Headful {
		cfg.Headless = false
	}
	if c.UseProxies {
		cfg.UseProxies = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	industries := config.LoadIndustries(cfg.IndustriesFile)
	proxies := config.LoadProxies(cfg.ProxiesFile)
	log.Info("scrape run starting", "industries", len(industries), "proxies", proxies.Len(), "fast_test", cfg.FastTest)

	mgr := browser.NewManager(cfg, proxies)
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	started := time.Now()
	results, runErr := scrape.New(cfg, mgr).Run(ctx, industries)

	// Whatever ended the run, completed industries still get persisted.
	records := scrape.Collect(results)
	if len(records) > 0 {
		path, err := workbook.Write(cfg.OutputDir, records, scrape.Analysis(results, started))
		if err != nil {
			log.Error("workbook write failed", "err", err)
			if runErr == nil {
				runErr = err
			}
		} else {
			log.Info("leads written", "path", path, "records", len(records))
		}
	} else {
		log.Warn("no records to persist")
	}
	return runErr
}

func (c *EnrichCmd) Run(cli *CLI) error {
	cfg := config.Load()
	if cli.FastTest {
		cfg.ApplyFastTest()
	}
	if c.Out != "" {
		cfg.OutputDir = c.Out
	}

	records, err := workbook.Read(c.File)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr := browser.NewManager(cfg, &config.ProxyPool{})
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	cp := workbook.NewCheckpointer(cfg.OutputDir)
	if err := enrich.New(cfg, mgr, cp).Run(ctx, records); err != nil {
		return err
	}

	pending := 0
	for _, r := range records {
		if r.NeedsContact() {
			pending++
		}
	}
	log.Info("enrichment pass complete", "records", len(records), "still_pending", pending, "progress", cp.ProgressPath())
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("mapleads"),
		kong.Description("Collects Norwegian business leads without websites from map search results."),
		kong.UsageOnError(),
	)

	if cli.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.SetTimeFormat(time.Kitchen)

	if err := kctx.Run(&cli); err != nil {
		log.Error("run failed", "err", err)
		os.Exit(1)
	}
}
