package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cropline/internal/app"
	"cropline/internal/config"
	"cropline/internal/db"
	"cropline/internal/domain"
	"cropline/internal/engine"
	"cropline/internal/migrate"
	"cropline/internal/repo"
	"cropline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Cropline CLI",
	Long: `Cropline tracks crop production on a farm, parcel by parcel.
Core concepts:
- Workspace: your .cropline directory holding the database; configs are stored in the DB and imported explicitly.
- Farm: the root record owning parcels, cycles, seasons, and the activity log.
- Land parcels: the plots of ground cycles run on; a parcel carries at most one active cycle.
- Crop cycles: one planting-to-harvest episode; statuses go planned -> active -> completed (failed/abandoned are exits).
- Stages: ordered phases inside a cycle (pending -> in_progress -> completed, or skipped) seeded from the crop's template.
- Activities: the append-only diary of real-world work (sowing, irrigation, harvest); view with 'cl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CROPLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("farm", "", "farm id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("farm", rootCmd.PersistentFlags().Lookup("farm"))
}

func registerCommands() {
	rootCmd.AddCommand(farmCmd())
	rootCmd.AddCommand(parcelCmd())
	rootCmd.AddCommand(cycleCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(seasonCmd())
	rootCmd.AddCommand(refCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func farmCmd() *cobra.Command {
	farm := &cobra.Command{Use: "farm", Short: "Manage farms"}
	farm.AddCommand(farmCreateCmd())
	farm.AddCommand(farmListCmd())
	farm.AddCommand(farmShowCmd())
	farm.AddCommand(farmStatusCmd())
	farm.AddCommand(farmConfigCmd())
	return farm
}

func farmCreateCmd() *cobra.Command {
	var id, name, location string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create farm",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default(id)
			}
			e := engine.New(conn, cfg)
			f, err := e.InitFarm(cmd.Context(), id, name, location, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(f)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "farm id")
	cmd.Flags().StringVar(&name, "name", "", "farm name")
	cmd.Flags().StringVar(&location, "location", "", "farm location")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func farmListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List farms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListFarms(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func farmShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show a farm",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.Repo.GetFarm(ctx, e.Config.Farm.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
}

func farmStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show farm status",
		Long:  "See the scoreboard for your farm: cycle counts by status, parcel count, and the latest event.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Status(ctx, e.Config.Farm.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
}

func farmConfigCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage farm config",
	}
	cfg.AddCommand(farmConfigShowCmd())
	cfg.AddCommand(farmConfigImportCmd())
	cfg.AddCommand(farmConfigInitCmd())
	return cfg
}

func farmConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show farm config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
}

func farmConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import farm config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				farmID := cfg.Farm.ID
				if farmID == "" {
					farmID = e.Config.Farm.ID
					cfg.Farm.ID = farmID
				}
				if err := e.ImportConfig(ctx, farmID, cfg, viper.GetString("actor-id")); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func farmConfigInitCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default cropline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(id)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "farm id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func parcelCmd() *cobra.Command {
	parcel := &cobra.Command{Use: "parcel", Short: "Manage land parcels"}
	parcel.AddCommand(parcelAddCmd())
	parcel.AddCommand(parcelListCmd())
	parcel.AddCommand(parcelShowCmd())
	parcel.AddCommand(parcelUpdateCmd())
	parcel.AddCommand(parcelDeleteCmd())
	return parcel
}

func parcelAddCmd() *cobra.Command {
	var code, name, soil, irrigation, notes, areaUnit string
	var area float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a land parcel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.ParcelOptions{
					FarmID:     e.Config.Farm.ID,
					Code:       code,
					Name:       name,
					SoilType:   soil,
					Irrigation: irrigation,
					Notes:      notes,
					ActorID:    viper.GetString("actor-id"),
				}
				if cmd.Flags().Changed("area") {
					opts.AreaValue = &area
				}
				if areaUnit != "" {
					u, err := e.Repo.GetUnitByCode(ctx, areaUnit)
					if err != nil {
						return fmt.Errorf("area unit %s: %w", areaUnit, err)
					}
					opts.AreaUnitID = &u.ID
				}
				p, err := e.CreateParcel(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "parcel code")
	cmd.Flags().StringVar(&name, "name", "", "parcel name")
	cmd.Flags().Float64Var(&area, "area", 0, "parcel area")
	cmd.Flags().StringVar(&areaUnit, "area-unit", "", "area unit code (e.g. ha)")
	cmd.Flags().StringVar(&soil, "soil", "", "soil type")
	cmd.Flags().StringVar(&irrigation, "irrigation", "", "irrigation method")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func parcelListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List land parcels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				parcels, err := e.Repo.ListParcels(ctx, e.Config.Farm.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(parcels)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Code", "Name", "Area", "Soil", "Irrigation"})
				for _, p := range parcels {
					area := ""
					if p.AreaValue != nil {
						area = fmt.Sprintf("%g", *p.AreaValue)
					}
					tw.AppendRow(table.Row{p.ID, p.Code, p.Name, area, p.SoilType, p.Irrigation})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func parcelShowCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a land parcel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetParcel(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "parcel id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func parcelUpdateCmd() *cobra.Command {
	var id int64
	var name, soil, irrigation, notes string
	var area float64
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a land parcel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.ParcelOptions{
					Name:       name,
					SoilType:   soil,
					Irrigation: irrigation,
					Notes:      notes,
					ActorID:    viper.GetString("actor-id"),
				}
				if cmd.Flags().Changed("area") {
					opts.AreaValue = &area
				}
				p, err := e.UpdateParcel(ctx, id, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "parcel id")
	cmd.Flags().StringVar(&name, "name", "", "parcel name")
	cmd.Flags().Float64Var(&area, "area", 0, "parcel area")
	cmd.Flags().StringVar(&soil, "soil", "", "soil type")
	cmd.Flags().StringVar(&irrigation, "irrigation", "", "irrigation method")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func parcelDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a land parcel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteParcel(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "parcel id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func cycleCmd() *cobra.Command {
	cycle := &cobra.Command{Use: "cycle", Short: "Manage crop cycles"}
	cycle.AddCommand(cyclePlanCmd())
	cycle.AddCommand(cycleListCmd())
	cycle.AddCommand(cycleShowCmd())
	cycle.AddCommand(cycleUpdateCmd())
	cycle.AddCommand(cycleDeleteCmd())
	cycle.AddCommand(cycleActivateCmd())
	cycle.AddCommand(cycleCompleteCmd())
	cycle.AddCommand(cycleFailCmd())
	cycle.AddCommand(cycleAbandonCmd())
	return cycle
}

func cyclePlanCmd() *cobra.Command {
	var parcelCode, cropCode, start, end, notes, seasonCode string
	var seasonYear int
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a crop cycle on a parcel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				parcel, err := e.Repo.GetParcelByCode(ctx, e.Config.Farm.ID, parcelCode)
				if err != nil {
					return fmt.Errorf("parcel %s: %w", parcelCode, err)
				}
				crop, err := e.Repo.GetCropTypeByCode(ctx, cropCode)
				if err != nil {
					return fmt.Errorf("crop type %s: %w", cropCode, err)
				}
				opts := engine.CycleCreateOptions{
					FarmID:           e.Config.Farm.ID,
					LandParcelID:     parcel.ID,
					CropTypeID:       crop.ID,
					PlannedStartDate: start,
					PlannedEndDate:   end,
					Notes:            notes,
					ActorID:          viper.GetString("actor-id"),
				}
				if seasonCode != "" {
					s, err := e.EnsureSeason(ctx, e.Config.Farm.ID, seasonCode, seasonYear)
					if err != nil {
						return err
					}
					opts.SeasonID = &s.ID
				}
				c, err := e.CreateCycle(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&parcelCode, "parcel", "", "parcel code")
	cmd.Flags().StringVar(&cropCode, "crop", "", "crop type code")
	cmd.Flags().StringVar(&start, "start", "", "planned start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "planned end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&seasonCode, "season", "", "season definition code")
	cmd.Flags().IntVar(&seasonYear, "year", time.Now().Year(), "season year")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("parcel")
	_ = cmd.MarkFlagRequired("crop")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func cycleListCmd() *cobra.Command {
	var status, parcelCode string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List crop cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f := repo.CycleFilters{FarmID: e.Config.Farm.ID, Status: status}
				if parcelCode != "" {
					parcel, err := e.Repo.GetParcelByCode(ctx, e.Config.Farm.ID, parcelCode)
					if err != nil {
						return fmt.Errorf("parcel %s: %w", parcelCode, err)
					}
					f.LandParcelID = parcel.ID
				}
				cycles, err := e.Repo.ListCycles(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cycles)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Code", "Parcel", "Status", "Planned Start", "Planned End"})
				for _, c := range cycles {
					tw.AppendRow(table.Row{c.ID, c.CycleCode, c.LandParcelID, c.Status, c.PlannedStartDate, c.PlannedEndDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&parcelCode, "parcel", "", "parcel code filter")
	return cmd
}

func cycleShowCmd() *cobra.Command {
	var id int64
	var code string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a crop cycle with its stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				var c domain.CropCycle
				var err error
				if code != "" {
					c, err = r.GetCycleByCode(ctx, code)
				} else {
					c, err = r.GetCycle(ctx, id)
				}
				if err != nil {
					return err
				}
				stages, err := r.ListStages(ctx, c.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"cycle": c, "stages": stages})
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "cycle id")
	cmd.Flags().StringVar(&code, "code", "", "cycle code")
	return cmd
}

func cycleUpdateCmd() *cobra.Command {
	var id int64
	var start, end, notes string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Edit a cycle's plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.CycleUpdateOptions{ActorID: viper.GetString("actor-id")}
				if cmd.Flags().Changed("start") {
					opts.PlannedStartDate = &start
				}
				if cmd.Flags().Changed("end") {
					opts.PlannedEndDate = &end
				}
				if cmd.Flags().Changed("notes") {
					opts.Notes = &notes
				}
				c, err := e.UpdateCyclePlan(ctx, id, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "cycle id")
	cmd.Flags().StringVar(&start, "start", "", "planned start date")
	cmd.Flags().StringVar(&end, "end", "", "planned end date")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func cycleDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a planned cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteCycle(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "cycle id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func cycleActivateCmd() *cobra.Command {
	var id int64
	var start string
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate a planned cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.ActivateCycle(ctx, id, start, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "cycle id")
	cmd.Flags().StringVar(&start, "date", "", "actual start date (defaults to today)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func cycleCompleteCmd() *cobra.Command {
	var id int64
	var end, quality, notes, yieldUnit string
	var yieldValue float64
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Complete an active cycle with its harvest outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.CycleCompleteOptions{
					ActualEndDate: end,
					QualityRating: quality,
					Notes:         notes,
					ActorID:       viper.GetString("actor-id"),
				}
				if cmd.Flags().Changed("yield") {
					opts.YieldValue = &yieldValue
				}
				if yieldUnit != "" {
					u, err := e.Repo.GetUnitByCode(ctx, yieldUnit)
					if err != nil {
						return fmt.Errorf("yield unit %s: %w", yieldUnit, err)
					}
					opts.YieldUnitID = &u.ID
				}
				c, err := e.CompleteCycle(ctx, id, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "cycle id")
	cmd.Flags().StringVar(&end, "date", "", "actual end date (defaults to today)")
	cmd.Flags().Float64Var(&yieldValue, "yield", 0, "yield value")
	cmd.Flags().StringVar(&yieldUnit, "yield-unit", "", "yield unit code (e.g. kg)")
	cmd.Flags().StringVar(&quality, "quality", "", "quality rating (excellent, good, fair, poor)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func cycleFailCmd() *cobra.Command {
	var id int64
	var reason string
	cmd := &cobra.Command{
		Use:   "fail",
		Short: "Mark an active cycle as failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.FailCycle(ctx, id, reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "cycle id")
	cmd.Flags().StringVar(&reason, "reason", "", "failure reason")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func cycleAbandonCmd() *cobra.Command {
	var id int64
	var reason string
	cmd := &cobra.Command{
		Use:   "abandon",
		Short: "Abandon a planned or active cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.AbandonCycle(ctx, id, reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "cycle id")
	cmd.Flags().StringVar(&reason, "reason", "", "abandon reason")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func stageCmd() *cobra.Command {
	stage := &cobra.Command{Use: "stage", Short: "Manage cycle stages"}
	stage.AddCommand(stageListCmd())
	stage.AddCommand(stageAddCmd())
	stage.AddCommand(stageStartCmd())
	stage.AddCommand(stageCompleteCmd())
	stage.AddCommand(stageSkipCmd())
	return stage
}

func stageListCmd() *cobra.Command {
	var cycleID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a cycle's stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				stages, err := r.ListStages(ctx, cycleID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stages)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "#", "Stage", "Status", "Planned Start", "Planned End"})
				for _, st := range stages {
					tw.AppendRow(table.Row{st.ID, st.SequenceOrder, st.StageName, st.Status, deref(st.PlannedStartDate), deref(st.PlannedEndDate)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&cycleID, "cycle", 0, "cycle id")
	_ = cmd.MarkFlagRequired("cycle")
	return cmd
}

func stageAddCmd() *cobra.Command {
	var cycleID int64
	var name, start, end, notes string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a stage to a cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.StageCreateOptions{
					CropCycleID: cycleID,
					StageName:   name,
					Notes:       notes,
					ActorID:     viper.GetString("actor-id"),
				}
				if start != "" {
					opts.PlannedStartDate = &start
				}
				if end != "" {
					opts.PlannedEndDate = &end
				}
				st, err := e.CreateStage(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().Int64Var(&cycleID, "cycle", 0, "cycle id")
	cmd.Flags().StringVar(&name, "name", "", "stage name")
	cmd.Flags().StringVar(&start, "start", "", "planned start date")
	cmd.Flags().StringVar(&end, "end", "", "planned end date")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("cycle")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func stageStartCmd() *cobra.Command {
	var id int64
	var date string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a pending stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.StartStage(ctx, id, date, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "stage id")
	cmd.Flags().StringVar(&date, "date", "", "actual start date (defaults to today)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func stageCompleteCmd() *cobra.Command {
	var id int64
	var date, notes string
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Complete an in-progress stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.CompleteStage(ctx, id, date, notes, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "stage id")
	cmd.Flags().StringVar(&date, "date", "", "actual end date (defaults to today)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func stageSkipCmd() *cobra.Command {
	var id int64
	var reason string
	cmd := &cobra.Command{
		Use:   "skip",
		Short: "Skip a pending stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.SkipStage(ctx, id, reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "stage id")
	cmd.Flags().StringVar(&reason, "reason", "", "skip reason")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func activityCmd() *cobra.Command {
	activity := &cobra.Command{Use: "activity", Short: "Record and list activities"}
	activity.AddCommand(activityRecordCmd())
	activity.AddCommand(activityListCmd())
	activity.AddCommand(activityShowCmd())
	return activity
}

func activityRecordCmd() *cobra.Command {
	var typeCode, date, description, performedBy, weather, quantityUnit, costUnit string
	var cycleID, parcelID, waterSourceID int64
	var quantity, cost float64
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an activity against a cycle or parcel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				at, err := e.Repo.GetActivityTypeByCode(ctx, typeCode)
				if err != nil {
					return fmt.Errorf("activity type %s: %w", typeCode, err)
				}
				opts := engine.ActivityOptions{
					ActivityTypeID:    at.ID,
					ActivityDate:      date,
					Description:       description,
					PerformedBy:       performedBy,
					WeatherConditions: weather,
					ActorID:           viper.GetString("actor-id"),
				}
				if cycleID > 0 {
					opts.CropCycleID = &cycleID
				}
				if parcelID > 0 {
					opts.LandParcelID = &parcelID
				}
				if waterSourceID > 0 {
					opts.WaterSourceID = &waterSourceID
				}
				if cmd.Flags().Changed("quantity") {
					opts.QuantityValue = &quantity
				}
				if quantityUnit != "" {
					u, err := e.Repo.GetUnitByCode(ctx, quantityUnit)
					if err != nil {
						return fmt.Errorf("quantity unit %s: %w", quantityUnit, err)
					}
					opts.QuantityUnitID = &u.ID
				}
				if cmd.Flags().Changed("cost") {
					opts.CostValue = &cost
				}
				if costUnit != "" {
					u, err := e.Repo.GetUnitByCode(ctx, costUnit)
					if err != nil {
						return fmt.Errorf("cost unit %s: %w", costUnit, err)
					}
					opts.CostUnitID = &u.ID
				}
				a, err := e.RecordActivity(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&typeCode, "type", "", "activity type code (e.g. irrigation)")
	cmd.Flags().Int64Var(&cycleID, "cycle", 0, "crop cycle id")
	cmd.Flags().Int64Var(&parcelID, "parcel-id", 0, "land parcel id")
	cmd.Flags().Int64Var(&waterSourceID, "water-source", 0, "water source id")
	cmd.Flags().StringVar(&date, "date", "", "activity date (defaults to today)")
	cmd.Flags().StringVar(&description, "description", "", "what was done")
	cmd.Flags().Float64Var(&quantity, "quantity", 0, "quantity value")
	cmd.Flags().StringVar(&quantityUnit, "quantity-unit", "", "quantity unit code")
	cmd.Flags().Float64Var(&cost, "cost", 0, "cost value")
	cmd.Flags().StringVar(&costUnit, "cost-unit", "", "cost unit code")
	cmd.Flags().StringVar(&performedBy, "by", "", "who performed the work")
	cmd.Flags().StringVar(&weather, "weather", "", "weather conditions")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func activityListCmd() *cobra.Command {
	var cycleID, parcelID int64
	var from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				activities, err := e.Repo.ListActivities(ctx, repo.ActivityFilters{
					FarmID:       e.Config.Farm.ID,
					CropCycleID:  cycleID,
					LandParcelID: parcelID,
					DateFrom:     from,
					DateTo:       to,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(activities)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Date", "Type", "Cycle", "Parcel", "Description"})
				for _, a := range activities {
					tw.AppendRow(table.Row{a.ID, a.ActivityDate, a.ActivityTypeID, derefInt(a.CropCycleID), derefInt(a.LandParcelID), a.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&cycleID, "cycle", 0, "crop cycle id filter")
	cmd.Flags().Int64Var(&parcelID, "parcel-id", 0, "land parcel id filter")
	cmd.Flags().StringVar(&from, "from", "", "date from (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "date to (YYYY-MM-DD)")
	return cmd
}

func activityShowCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show an activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetActivity(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "activity id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func seasonCmd() *cobra.Command {
	season := &cobra.Command{Use: "season", Short: "Manage seasons"}
	season.AddCommand(seasonEnsureCmd())
	season.AddCommand(seasonListCmd())
	return season
}

func seasonEnsureCmd() *cobra.Command {
	var code string
	var year int
	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Ensure a season exists for a year",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.EnsureSeason(ctx, e.Config.Farm.ID, code, year)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "season definition code")
	cmd.Flags().IntVar(&year, "year", time.Now().Year(), "season year")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func seasonListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List seasons",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				seasons, err := e.Repo.ListSeasons(ctx, e.Config.Farm.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(seasons)
			})
		},
	}
}

func refCmd() *cobra.Command {
	ref := &cobra.Command{Use: "ref", Short: "Reference data"}
	ref.AddCommand(refCropAddCmd())
	ref.AddCommand(refCropListCmd())
	ref.AddCommand(refUnitsCmd())
	ref.AddCommand(refActivityTypesCmd())
	ref.AddCommand(refSeasonDefsCmd())
	ref.AddCommand(refWaterAddCmd())
	ref.AddCommand(refWaterListCmd())
	return ref
}

func refCropAddCmd() *cobra.Command {
	var code, name, category string
	var duration int
	cmd := &cobra.Command{
		Use:   "crop-add",
		Short: "Register a crop type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var durPtr *int
				if cmd.Flags().Changed("duration") {
					durPtr = &duration
				}
				c, err := e.UpsertCropType(ctx, code, name, category, durPtr)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "crop type code")
	cmd.Flags().StringVar(&name, "name", "", "crop type name")
	cmd.Flags().StringVar(&category, "category", "", "category (cereal, vegetable, ...)")
	cmd.Flags().IntVar(&duration, "duration", 0, "typical duration in days")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func refCropListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crops",
		Short: "List crop types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCropTypes(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func refUnitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "List units of measure",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListUnits(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func refActivityTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activity-types",
		Short: "List activity types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListActivityTypes(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func refSeasonDefsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "season-defs",
		Short: "List season definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListSeasonDefinitions(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func refWaterAddCmd() *cobra.Command {
	var name, kind, notes string
	cmd := &cobra.Command{
		Use:   "water-add",
		Short: "Register a water source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.CreateWaterSource(ctx, e.Config.Farm.ID, name, kind, notes)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "water source name")
	cmd.Flags().StringVar(&kind, "kind", "", "kind (well, canal, rain, pond, municipal)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func refWaterListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "water",
		Short: "List water sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListWaterSources(ctx, e.Config.Farm.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Farm.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var webhooks bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveFarmAndConfig(cmd.Context(), workspace, viper.GetString("farm"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("CROPLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("CROPLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Webhooks: webhooks})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Cropline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&webhooks, "webhooks", true, "run the webhook dispatcher")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveFarmAndConfig(ctx, workspace, viper.GetString("farm"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(*v)
}
