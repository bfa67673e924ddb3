package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	json "github.com/goccy/go-json"

	"github.com/rshade/eap-emissions-calculator/internal/appinfo"
	"github.com/rshade/eap-emissions-calculator/internal/emissions"
	"github.com/rshade/eap-emissions-calculator/internal/export"
	"github.com/rshade/eap-emissions-calculator/internal/server"
)

type command struct {
	// needsStore opens the history database before run.
	needsStore bool
	run        func(a *app, args []string) error
}

var commands = map[string]command{
	"sources": {run: cmdSources},
	"add":     {needsStore: true, run: cmdAdd},
	"edit":    {needsStore: true, run: cmdEdit},
	"remove":  {needsStore: true, run: cmdRemove},
	"list":    {needsStore: true, run: cmdList},
	"totals":  {needsStore: true, run: cmdTotals},
	"reset":   {needsStore: true, run: cmdReset},
	"export":  {needsStore: true, run: cmdExport},
	"serve":   {needsStore: true, run: cmdServe},
	"version": {run: cmdVersion},
}

var errUsage = errors.New("invalid arguments")

func cmdSources(a *app, args []string) error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tSOURCE\tkWh/UNIT\tkg CO₂/UNIT")
	for i, s := range a.calc.Table().Sources() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, s.ID, s.DisplayLabel(),
			strconv.FormatFloat(s.EnergyFactor, 'f', -1, 64),
			strconv.FormatFloat(s.EmissionFactor, 'f', -1, 64))
	}
	return tw.Flush()
}

// resolveSource accepts a source ID or its 1-based position in the table.
func resolveSource(t *emissions.Table, ref string) (string, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		s, ok := t.SourceAt(n - 1)
		if !ok {
			return "", fmt.Errorf("%w: no source #%d", emissions.ErrUnknownSource, n)
		}
		return s.ID, nil
	}
	return ref, nil
}

// resolveRecord accepts a record ID or its 1-based position in the history.
func resolveRecord(c *emissions.Calculator, ref string) (string, error) {
	records := c.Records()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(records) {
			return "", fmt.Errorf("%w: no record #%d", emissions.ErrRecordNotFound, n)
		}
		return records[n-1].ID, nil
	}
	if _, ok := c.Record(ref); !ok {
		return "", fmt.Errorf("%w: %q", emissions.ErrRecordNotFound, ref)
	}
	return ref, nil
}

func cmdAdd(a *app, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: add <source> <quantity>", errUsage)
	}
	sourceID, err := resolveSource(a.calc.Table(), args[0])
	if err != nil {
		return err
	}
	r, err := a.calc.AddInput(sourceID, args[1])
	if err != nil {
		return err
	}
	if err := a.save(); err != nil {
		return err
	}
	a.logger.Debug().Str("record_id", r.ID).Str("source", r.Source.ID).Float64("quantity", r.Quantity).Msg("calculation added")

	fmt.Fprintf(a.out, "Added: %s %s %s -> %s kWh, %s kg CO₂\n",
		r.Source.Name, emissions.FormatAmount(r.Quantity), r.Source.Unit,
		emissions.FormatAmount(r.Energy), emissions.FormatAmount(r.Emissions))
	printTotals(a.out, a.calc.Totals())
	return nil
}

func cmdEdit(a *app, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: edit <n|id> <quantity>", errUsage)
	}
	id, err := resolveRecord(a.calc, args[0])
	if err != nil {
		return err
	}
	r, changed, err := a.calc.UpdateInput(id, args[1])
	if err != nil {
		return err
	}
	if !changed {
		fmt.Fprintln(a.out, "No changes.")
		return nil
	}
	if err := a.save(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated: %s %s %s -> %s kWh, %s kg CO₂\n",
		r.Source.Name, emissions.FormatAmount(r.Quantity), r.Source.Unit,
		emissions.FormatAmount(r.Energy), emissions.FormatAmount(r.Emissions))
	printTotals(a.out, a.calc.Totals())
	return nil
}

func cmdRemove(a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: remove <n|id>", errUsage)
	}
	id, err := resolveRecord(a.calc, args[0])
	if err != nil {
		return err
	}
	if err := a.calc.Remove(id); err != nil {
		return err
	}
	if err := a.save(); err != nil {
		return err
	}
	printTotals(a.out, a.calc.Totals())
	return nil
}

func cmdList(a *app, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print records as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	records := a.calc.Records()
	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Records []emissions.Record `json:"records"`
			Totals  emissions.Totals   `json:"totals"`
		}{Records: records, Totals: emissions.SumRecords(records)})
	}

	if len(records) == 0 {
		fmt.Fprintln(a.out, "No calculations.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\t"+strings.Join(emissions.TableHeaders(), "\t")+"\tID")
	for i, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", i+1, r.Source.Name,
			emissions.FormatAmount(r.Quantity), r.Source.Unit,
			emissions.FormatAmount(r.Energy), emissions.FormatAmount(r.Emissions), r.ID)
	}
	totals := emissions.SumRecords(records)
	fmt.Fprintf(tw, "\t%s\t\t\t%s\t%s\t\n", emissions.TotalLabel,
		emissions.FormatAmount(totals.Energy), emissions.FormatAmount(totals.Emissions))
	return tw.Flush()
}

func cmdTotals(a *app, args []string) error {
	printTotals(a.out, a.calc.Totals())
	return nil
}

func printTotals(w io.Writer, t emissions.Totals) {
	fmt.Fprintf(w, "Total energy: %s kWh\nTotal CO₂: %s kg\n",
		emissions.FormatAmount(t.Energy), emissions.FormatAmount(t.Emissions))
}

func cmdReset(a *app, args []string) error {
	a.calc.Reset()
	if err := a.store.Clear(context.Background()); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Calculator reset.")
	return nil
}

func cmdExport(a *app, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	formatName := fs.String("format", string(export.FormatCSV), "Export format: csv or xlsx")
	locationName := fs.String("location", string(export.LocationInternal), "Export location: internal or external")
	outPath := fs.String("o", "", "Write to this file instead (\"-\" for stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	format, err := export.ParseFormat(*formatName)
	if err != nil {
		return err
	}
	records := a.calc.Records()

	switch *outPath {
	case "":
		location, err := export.ParseLocation(*locationName)
		if err != nil {
			return err
		}
		path, err := a.exporter.ExportFile(records, format, location)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Saved to %s\n", path)
		return nil
	case "-":
		return export.Write(a.out, format, records)
	default:
		f, err := os.Create(*outPath)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		if err := export.Write(f, format, records); err != nil {
			_ = f.Close()
			_ = os.Remove(*outPath)
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Saved to %s\n", *outPath)
		return nil
	}
}

func cmdServe(a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", a.cfg.Server.ListenAddr, "Address for the HTTP API")
	grpcAddr := fs.String("grpc", a.cfg.Server.GRPCAddr, "Address for the gRPC health service (empty disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	httpLn, err := net.Listen("tcp", *listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", *listen, err)
	}
	var grpcLn net.Listener
	if *grpcAddr != "" {
		grpcLn, err = net.Listen("tcp", *grpcAddr)
		if err != nil {
			_ = httpLn.Close()
			return fmt.Errorf("listen %s: %w", *grpcAddr, err)
		}
	}

	srv := server.New(server.Options{
		Calculator:      a.calc,
		Store:           a.store,
		Exporter:        a.exporter,
		Logger:          a.logger,
		RateLimit:       a.cfg.Server.RateLimit,
		RateBurst:       a.cfg.Server.RateBurst,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		CORS:            a.cfg.Server.CORS,
	})

	ctx, cancel := signalContext(a.logger)
	defer cancel()
	return srv.Serve(ctx, httpLn, grpcLn)
}

func cmdVersion(a *app, args []string) error {
	info := appinfo.Get()
	fmt.Fprintln(a.out, info.String())
	fmt.Fprintf(a.out, "java %d, release minify %t, proguard %s\n",
		info.JavaCompatibility, info.ReleaseMinify, strings.Join(info.ReleaseProguardFiles, ", "))
	return nil
}
