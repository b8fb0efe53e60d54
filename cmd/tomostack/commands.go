package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrjoshuak/go-tomostack/pipeline"
	"github.com/mrjoshuak/go-tomostack/tiff"
	"github.com/mrjoshuak/go-tomostack/volume"
)

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tomostack",
		Short:         "Tomography stack inspection and conversion",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"YAML configuration file")

	root.AddCommand(newInfoCommand())
	root.AddCommand(newConvertCommand(&configPath))
	root.AddCommand(newStateCommand())
	return root
}

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>...",
		Short: "Print geometry and OME metadata of TIFF files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				f, err := tiff.Open(path)
				if err != nil {
					return err
				}
				meta, err := f.Metadata()
				if err != nil {
					fmt.Printf("%s: unsupported (%v)\n", path, err)
					continue
				}
				fmt.Printf("%s: %dx%dx%d %s x%d (%s), spacing %g/%g/%g %s\n",
					path, meta.Width, meta.Height, meta.NumSlices,
					meta.SampleType, meta.Components, meta.Format,
					meta.Spacing[0], meta.Spacing[1], meta.Spacing[2],
					meta.Units[0])
			}
			return nil
		},
	}
}

func newConvertCommand(configPath *string) *cobra.Command {
	var (
		output     string
		label      string
		tiltSeries bool
	)

	cmd := &cobra.Command{
		Use:   "convert <file>...",
		Short: "Decode TIFF files into a volume and write its state document",
		Long: `Decode a multi-page or tiled TIFF, or an ordered list of single-page
TIFFs treated as a z stack, and write the resulting data source state as
a JSON document.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			var vol *volume.Volume
			if len(args) == 1 {
				f, err := tiff.Open(args[0])
				if err != nil {
					return err
				}
				vol, err = f.DecodeVolume()
				if err != nil {
					return err
				}
			} else {
				vol, err = tiff.DecodeStack(args)
				if err != nil {
					return err
				}
			}

			if tiltSeries {
				vol.SetType(volume.TypeTiltSeries)
			}
			if cfg.Subsample.Enabled {
				vol.Field.SetWasSubsampled(true)
				vol.Field.SetSubsampleStrides(cfg.Subsample.Strides)
				vol.Field.SetSubsampleVolumeBounds(cfg.Subsample.VolumeBounds)
			}

			env := &pipeline.Env{
				Logger:             log.New(os.Stderr, "tomostack: ", 0),
				RunPipelinesOnLoad: cfg.RunPipelinesOnLoad,
			}
			ds := pipeline.NewFromFiles(env, vol, args, pipeline.Modified)
			if label != "" {
				ds.SetLabel(label)
			}

			doc, err := ds.Serialize(true)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')
			if output == "" || output == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&label, "label", "", "data source label")
	cmd.Flags().BoolVar(&tiltSeries, "tilt-series", false,
		"tag the volume as a tilt series")
	return cmd
}

func newStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect saved state documents",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <state.json>",
		Short: "Summarize a state document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var doc pipeline.Document
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Printf("label:          %s\n", doc.Label)
			fmt.Printf("id:             %s\n", doc.ID)
			fmt.Printf("active scalars: %s\n", doc.ActiveScalars)
			if doc.Reader != nil {
				fmt.Printf("files:          %v\n", doc.Reader.FileNames)
			}
			if doc.Spacing != nil {
				fmt.Printf("spacing:        %v %s\n", *doc.Spacing, doc.Units)
			}
			if doc.SubsampleSettings != nil {
				fmt.Printf("subsampled:     strides %v bounds %v\n",
					doc.SubsampleSettings.Strides, doc.SubsampleSettings.VolumeBounds)
			}
			fmt.Printf("operators:      %d\n", len(doc.Operators))
			fmt.Printf("modules:        %d\n", len(doc.Modules))
			return nil
		},
	})
	return cmd
}
