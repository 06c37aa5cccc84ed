package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/lychee-technology/eavcache"
)

type inspectOptions struct {
	configPath     string
	entityType     string
	attributeSetID int
	asJSON         bool
}

func runInspect(args []string) error {
	flags := flag.NewFlagSet("inspect", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: eav-tools inspect [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := inspectOptions{}
	flags.StringVar(&opts.configPath, "config", getenvDefault("EAVCACHE_CONFIG", ""), "config file (YAML or JSON)")
	flags.StringVar(&opts.entityType, "entity-type", "", "entity type code or numeric ID whose attributes are listed")
	flags.IntVar(&opts.attributeSetID, "attribute-set", getenvDefaultInt("EAVCACHE_ATTRIBUTE_SET", 0), "attribute set ID whose codes are listed")
	flags.BoolVar(&opts.asJSON, "json", false, "print JSON instead of a table")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx := context.Background()
	config, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	rt, cleanup, err := openRuntime(ctx, config)
	if err != nil {
		return err
	}
	defer cleanup()

	cache, release := rt.NewMetadataCache()
	defer release()
	return inspect(ctx, os.Stdout, cache, opts)
}

type attributeView struct {
	ID          int32  `json:"attribute_id"`
	Code        string `json:"attribute_code"`
	Model       string `json:"attribute_model"`
	BackendType string `json:"backend_type"`
	IsGlobal    bool   `json:"is_global"`
	IsRequired  bool   `json:"is_required"`
}

func inspect(ctx context.Context, w io.Writer, cache eavcache.MetadataCache, opts inspectOptions) error {
	if err := cache.Warm(ctx); err != nil {
		return err
	}

	switch {
	case opts.attributeSetID != 0:
		set, ok, err := cache.GetAttributeSet(ctx, int32(opts.attributeSetID))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("attribute set %d not found", opts.attributeSetID)
		}
		if opts.asJSON {
			return writeJSON(w, set)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", set.ID, set.Name, strings.Join(set.AttributeCodes, ","))
		return nil

	case opts.entityType != "":
		attributes, err := cache.GetEntityTypeAttributes(ctx, eavcache.ParseEntityTypeRef(opts.entityType))
		if err != nil {
			return err
		}
		views := make([]attributeView, 0, len(attributes))
		for _, attribute := range attributes {
			d := attribute.Data()
			views = append(views, attributeView{
				ID:          d.ID,
				Code:        d.Code,
				Model:       attribute.ModelName(),
				BackendType: d.BackendType,
				IsGlobal:    d.IsGlobal,
				IsRequired:  d.IsRequired,
			})
		}
		if opts.asJSON {
			return writeJSON(w, views)
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCODE\tMODEL\tBACKEND\tGLOBAL\tREQUIRED")
		for _, v := range views {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%t\n", v.ID, v.Code, v.Model, v.BackendType, v.IsGlobal, v.IsRequired)
		}
		return tw.Flush()

	default:
		entityTypes, err := cache.ListEntityTypes(ctx)
		if err != nil {
			return err
		}
		if opts.asJSON {
			return writeJSON(w, entityTypes)
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCODE\tATTRIBUTES\tDEFAULT SET")
		for _, et := range entityTypes {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", et.ID, et.Code, len(et.AttributeCodes), et.DefaultAttributeSetID)
		}
		return tw.Flush()
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
