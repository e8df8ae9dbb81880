package main

import (
	"context"
	"fmt"
)

func whoamiCommand(cmd *Command, args []string) error {
	fs := cmd.NewFlagSet()
	if stop, err := parseFlags(fs, args); stop {
		return err
	}

	a, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.requireUser()
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func forgetCommand(cmd *Command, args []string) error {
	fs := cmd.NewFlagSet()
	if stop, err := parseFlags(fs, args); stop {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ident.Forget(ctx); err != nil {
		return err
	}
	fmt.Println("Stored member id removed.")
	return nil
}
