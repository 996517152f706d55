package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehdc-llpg/ban-cadastre-link/internal/aggregate"
	"github.com/ehdc-llpg/ban-cadastre-link/internal/analysis"
	"github.com/ehdc-llpg/ban-cadastre-link/internal/config"
	"github.com/ehdc-llpg/ban-cadastre-link/internal/model"
	"github.com/ehdc-llpg/ban-cadastre-link/internal/pipeline"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Printf("warning: failed to load .env: %v", err)
	}

	rootCmd := &cobra.Command{
		Use:   "bancadastre",
		Short: "Address-to-parcel record linkage for the BAN/cadastre datasets",
		Long:  `Matches address points to cadastral parcels in a planar CRS, with QA, aggregation, and analysis reporting.`,
	}

	rootCmd.AddCommand(createLinkCmd())
	rootCmd.AddCommand(createPipelineCmd())
	rootCmd.AddCommand(createAnalyzeCmd())
	rootCmd.AddCommand(createStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func createLinkCmd() *cobra.Command {
	var (
		inputParcelles    string
		inputAdresses     string
		output            string
		distanceThreshold float64
		batchSize         int
		filterCommune     string
		limitAddresses    int
		strict            bool
	)

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Match one department's addresses to its cadastral parcels",
		Run: func(cmd *cobra.Command, args []string) {
			job := pipeline.DepartmentJob{
				ParcelsPath:    inputParcelles,
				AddressesPath:  inputAdresses,
				MatchesOutPath: output,
				FilterCommune:  filterCommune,
				LimitAddresses: limitAddresses,
			}
			cfg := model.DefaultMatchConfig()
			cfg.AddressMaxDistanceM = distanceThreshold

			n, err := pipeline.RunLink(job, cfg, batchSize)
			if err != nil {
				log.Printf("link failed: %v", err)
				if strict {
					os.Exit(2)
				}
				os.Exit(1)
			}
			fmt.Printf("matched %d rows -> %s\n", n, output)
		},
	}

	cmd.Flags().StringVar(&inputParcelles, "input-parcelles", "", "input parcels parquet file")
	cmd.Flags().StringVar(&inputAdresses, "input-adresses", "", "input addresses parquet file")
	cmd.Flags().StringVar(&output, "output", "", "output matches parquet file")
	cmd.Flags().Float64Var(&distanceThreshold, "distance-threshold", 50.0, "Stage 2 (BorderNear) max distance in meters")
	cmd.Flags().IntVar(&batchSize, "batch-size", 10000, "writer flush batch size")
	cmd.Flags().StringVar(&filterCommune, "filter-commune", "", "restrict to a single commune code")
	cmd.Flags().IntVar(&limitAddresses, "limit-addresses", 0, "truncate the address set to this many rows (0 = no limit)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit 2 instead of 1 on partial failure")
	cmd.MarkFlagRequired("input-parcelles")
	cmd.MarkFlagRequired("input-adresses")
	cmd.MarkFlagRequired("output")
	return cmd
}

func createPipelineCmd() *cobra.Command {
	var (
		manifest   string
		inputDir   string
		outputDir  string
		statusPath string
		strict     bool
	)

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run link + QA for every department in a manifest",
		Run: func(cmd *cobra.Command, args []string) {
			rows, invalid, err := analysis.ReadManifest(manifest)
			if err != nil {
				log.Fatalf("pipeline: %v", err)
			}
			if len(invalid) > 0 {
				log.Printf("pipeline: %d invalid manifest rows skipped", len(invalid))
			}

			var jobs []pipeline.DepartmentJob
			for _, r := range rows {
				jobs = append(jobs, pipeline.DepartmentJob{
					CodeDept:       r.CodeDept,
					ParcelsPath:    fmt.Sprintf("%s/parcelles_%s.parquet", inputDir, r.CodeDept),
					AddressesPath:  fmt.Sprintf("%s/adresses_%s.parquet", inputDir, r.CodeDept),
					MatchesOutPath: fmt.Sprintf("%s/matches_%s.parquet", outputDir, r.CodeDept),
					QAOutDir:       outputDir,
				})
			}

			status, summaries := pipeline.RunAll(jobs, model.DefaultMatchConfig(), 10000, statusPath)
			fmt.Printf("completed %d/%d departments (%d failed)\n", status.Completed, status.Total, status.Failed)

			if len(summaries) > 0 {
				outcome, err := aggregate.Aggregate(summaries, outputDir, outputDir)
				if err != nil {
					log.Printf("national aggregation failed: %v", err)
				} else if outcome.Partial {
					log.Printf("national aggregation partial, missing: %v", outcome.MissingInputs)
				}
			}

			if status.Failed > 0 {
				if strict {
					os.Exit(2)
				}
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&manifest, "manifest", "", "departments manifest CSV")
	cmd.Flags().StringVar(&inputDir, "input-dir", "", "directory containing per-department input parquet files")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory to write matches + QA artifacts")
	cmd.Flags().StringVar(&statusPath, "status-path", "", "path to write the running status snapshot")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit 2 instead of 1 if any department fails")
	cmd.MarkFlagRequired("manifest")
	cmd.MarkFlagRequired("input-dir")
	cmd.MarkFlagRequired("output-dir")
	return cmd
}

func createAnalyzeCmd() *cobra.Command {
	var (
		manifest  string
		qaDir     string
		outputDir string
		strict    bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Summarize national coverage from per-department QA outputs",
		Run: func(cmd *cobra.Command, args []string) {
			rows, invalid, err := analysis.ReadManifest(manifest)
			if err != nil {
				log.Fatalf("analyze: %v", err)
			}

			var deptRows []analysis.DeptStats
			var skippedMatches []string
			for _, r := range rows {
				in := analysis.DeptInputs{MatchesParquetPath: fmt.Sprintf("%s/parcelles_adresses_%s.parquet", qaDir, r.CodeDept)}
				stats, ok, err := analysis.AnalyzeDepartment(r, in)
				if err != nil {
					log.Printf("analyze: %s: %v", r.CodeDept, err)
					continue
				}
				if !ok {
					skippedMatches = append(skippedMatches, r.CodeDept)
					continue
				}
				deptRows = append(deptRows, stats)
			}

			summary := analysis.Summarize(deptRows, len(invalid), len(skippedMatches), 0)
			outcome := analysis.Outcome{
				Summary:               summary,
				InvalidManifestRows:    invalid,
				SkippedMissingMatches:  skippedMatches,
				DeptRows:               deptRows,
			}

			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				log.Fatalf("analyze: %v", err)
			}
			csvPath := outputDir + "/departments_summary.csv"
			jsonPath := outputDir + "/national_summary.json"
			mdPath := outputDir + "/analysis_report.md"

			if err := analysis.WriteDepartmentsSummaryCSV(csvPath, deptRows); err != nil {
				log.Fatalf("analyze: %v", err)
			}
			if err := analysis.WriteNationalSummaryJSON(jsonPath, summary); err != nil {
				log.Fatalf("analyze: %v", err)
			}
			artifacts := []string{csvPath, jsonPath, mdPath}
			if err := analysis.WriteMarkdownReport(mdPath, outcome, artifacts); err != nil {
				log.Fatalf("analyze: %v", err)
			}

			fmt.Printf("analyzed %d departments (%d skipped, %d invalid manifest rows)\n",
				len(deptRows), len(skippedMatches), len(invalid))
			if (len(skippedMatches) > 0 || len(invalid) > 0) && strict {
				os.Exit(2)
			}
		},
	}

	cmd.Flags().StringVar(&manifest, "manifest", "", "departments manifest CSV")
	cmd.Flags().StringVar(&qaDir, "qa-dir", "", "directory containing per-department QA artifacts")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory to write national reports")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit 2 instead of 0 when any department was skipped or any manifest row was invalid")
	cmd.MarkFlagRequired("manifest")
	cmd.MarkFlagRequired("qa-dir")
	cmd.MarkFlagRequired("output-dir")
	return cmd
}

func createStatusCmd() *cobra.Command {
	var statusPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the last pipeline run's status snapshot",
		Run: func(cmd *cobra.Command, args []string) {
			s, err := pipeline.ReadStatus(statusPath)
			if err != nil {
				log.Fatalf("status: %v", err)
			}
			fmt.Printf("%d/%d departments completed, %d failed\n", s.Completed, s.Total, s.Failed)
			for _, r := range s.Results {
				state := "ok"
				if !r.OK {
					state = "FAILED: " + r.Error
				}
				fmt.Printf("  %s: %s\n", r.CodeDept, state)
			}
		},
	}
	cmd.Flags().StringVar(&statusPath, "status-path", "", "path to the status snapshot written by `pipeline`")
	cmd.MarkFlagRequired("status-path")
	return cmd
}
