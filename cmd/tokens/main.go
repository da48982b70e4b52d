// Command tokens manages the bearer tokens accepted by the agent server.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"portal-chat/internal/auth"
	"portal-chat/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}
	cfg := config.New()

	flagSet := pflag.NewFlagSet("tokens", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.TokensFilePath, "file", cfg.TokensFilePath, "token registry file")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  tokens [--file path] grant <name>\n  tokens [--file path] revoke <name>\n  tokens [--file path] list\n")
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	repo, err := auth.NewFileRepository(cfg.TokensFilePath)
	if err != nil {
		return err
	}
	svc, err := auth.NewWithRepo(repo, nil)
	if err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		flagSet.Usage()
		return fmt.Errorf("missing command")
	}
	switch rest[0] {
	case "grant":
		if len(rest) != 2 {
			return fmt.Errorf("grant takes exactly one principal name")
		}
		token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
		if err := svc.Grant(rest[1], token); err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", rest[1], token)
	case "revoke":
		if len(rest) != 2 {
			return fmt.Errorf("revoke takes exactly one principal name")
		}
		return svc.Revoke(rest[1])
	case "list":
		principals := svc.List()
		sort.Slice(principals, func(i, j int) bool { return principals[i].Name < principals[j].Name })
		for _, p := range principals {
			fmt.Printf("%s\t%s…\n", p.Name, p.TokenHash[:12])
		}
	default:
		flagSet.Usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}
	return nil
}
