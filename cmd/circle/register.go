package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lyfcircle/circle/internal/api"
	"github.com/lyfcircle/circle/internal/config"
	"github.com/lyfcircle/circle/internal/logging"
	"github.com/lyfcircle/circle/internal/refdata"
	"github.com/lyfcircle/circle/internal/survey"
)

func registerCommand(cmd *Command, args []string) error {
	fs := cmd.NewFlagSet()
	questionsFile := fs.String("questions", "", "YAML question catalog (overrides CIRCLE_QUESTIONS_FILE)")
	block := fs.Bool("block-on-failure", false, "Stay on the last question when registration fails")
	offline := fs.Bool("offline", false, "Skip fetching country and language reference data")
	if stop, err := parseFlags(fs, args); stop {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if id := a.ident.UserID(); id != "" {
		fmt.Printf("Already registered as %s. Run 'circle forget' to register again.\n", id)
		return nil
	}

	questions, err := loadQuestions(a.cfg, *questionsFile)
	if err != nil {
		return err
	}
	if !*offline {
		ref := refdata.Load(ctx, refdata.NewClient(a.cfg.CountriesURL, a.cfg.HTTPTimeout), logging.Component(a.log, "refdata"))
		questions = survey.WithCountryChoices(questions, ref.Codes)
		questions = survey.WithLanguageSuggestions(questions, ref.Languages)
	}

	policy := survey.ContinueOnFailure
	if *block || a.cfg.SubmitFailure == config.SubmitBlock {
		policy = survey.BlockOnFailure
	}

	client := api.NewClient(a.cfg.APIBaseURL, a.cfg.HTTPTimeout, logging.Component(a.log, "api"))
	w, err := survey.New(questions, client, a.ident,
		survey.WithLogger(logging.Component(a.log, "survey")),
		survey.WithFailurePolicy(policy),
	)
	if err != nil {
		return err
	}

	out, err := runWizard(ctx, w, newTerminal(os.Stdin, os.Stdout))
	if errors.Is(err, errAborted) {
		fmt.Println("\nNothing was submitted.")
		return nil
	}
	if err != nil {
		return err
	}

	if out.Degraded {
		fmt.Println("\nWe could not reach the registration service; your answers were not saved.")
	} else {
		fmt.Printf("\nWelcome! Your member id is %s.\n", out.UserID)
	}
	fmt.Println("Run 'circle events' to see what's on.")
	return nil
}

func loadQuestions(cfg config.Config, flagPath string) ([]survey.Question, error) {
	path := cfg.QuestionsFile
	if flagPath != "" {
		path = flagPath
	}
	if path == "" {
		return survey.DefaultQuestions(), nil
	}
	return survey.LoadCatalog(path)
}
