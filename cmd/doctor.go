package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CosmoTheDev/scanboard/internal/api"
	"github.com/CosmoTheDev/scanboard/internal/database"
	"github.com/CosmoTheDev/scanboard/internal/export"
	"github.com/CosmoTheDev/scanboard/internal/schedule"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify backend reachability, session and local storage",
	Long: `Checks that the backend answers, that the stored session is accepted,
that the journal database can be opened, and that the config file's
schedules and export settings are valid.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, client, err := loadClient()
	if err != nil {
		return err
	}

	allOK := true

	fmt.Println("=== scanboard doctor ===")
	fmt.Println()

	fmt.Print("Backend .................. ")
	if err := client.Health(ctx); err != nil {
		fmt.Printf("FAIL (%s)\n", api.UserMessage(err))
		allOK = false
	} else {
		fmt.Printf("OK (%s)\n", cfg.API.URL)
	}

	fmt.Print("Session .................. ")
	switch {
	case client.Session() == "":
		fmt.Println("WARN (not logged in; run 'scanboard login')")
		allOK = false
	default:
		if _, err := client.Stats(ctx); err != nil {
			if errors.Is(err, api.ErrUnauthorized) {
				fmt.Println("FAIL (session rejected; run 'scanboard login')")
			} else {
				fmt.Printf("FAIL (%s)\n", api.UserMessage(err))
			}
			allOK = false
		} else {
			fmt.Println("OK")
		}
	}

	fmt.Print("Journal database ......... ")
	db, err := database.New(cfg.Database)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		if err := db.Ping(ctx); err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else if err := db.Migrate(ctx); err != nil {
			fmt.Printf("FAIL (migrations: %s)\n", err)
			allOK = false
		} else {
			where := "dsn configured"
			if f, ok := db.(interface{ Path() string }); ok {
				where = f.Path()
			}
			fmt.Printf("OK (%s: %s)\n", db.Driver(), where)
		}
		db.Close()
	}

	fmt.Print("Export compression ....... ")
	if c, err := export.ParseCompression(cfg.Export.Compression); err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		fmt.Printf("OK (%s)\n", c)
	}

	if len(cfg.Schedules) > 0 {
		fmt.Println()
		fmt.Println("Schedules:")
		for i, sc := range cfg.Schedules {
			name := sc.Name
			if name == "" {
				name = fmt.Sprintf("schedule-%d", i+1)
			}
			fmt.Printf("  %-20s ... ", name)
			if err := schedule.Validate(sc.Expr); err != nil {
				fmt.Printf("FAIL (%s)\n", err)
				allOK = false
				continue
			}
			if !sc.Enabled {
				fmt.Println("disabled")
				continue
			}
			fmt.Println("OK")
		}
	}

	fmt.Println()
	if allOK {
		fmt.Println(successStyle.Render("All checks passed. scanboard is ready."))
	} else {
		fmt.Println(warnStyle.Render("Some checks failed. See above."))
	}
	return nil
}
