package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	piimask "github.com/Gokulkiran418/aws-textract-mask-pii"
	"github.com/urfave/cli"
	"golang.org/x/term"
)

// shell runs an interactive masking session. Structured logs go to stderr
// so the prompt on stdout stays readable.
func shell(c *cli.Context) error {

	logger := newLogger(c, true)

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		err := errors.New("shell requires an interactive terminal")
		logger.Error().Str("errmsg", err.Error()).Msg("refusing to start")
		return err
	}

	cfg := buildConfig(c)
	logger.Debug().
		Str("endpoint", cfg.Service.Endpoint).
		Str("style", cfg.Mask.Style).
		Str("out", cfg.Download.Dir).
		Msg("launching params")

	startPprof(c, logger)

	ctx, cancel := signalContext(logger)
	defer cancel()

	svc := piimask.NewMaskService(logger, cfg.Service.Endpoint)
	svc.SetTimeout(cfg.Service.Timeout)

	up := piimask.NewUploader(logger, svc)
	pres := piimask.NewDiskPresenter(logger, cfg.Download.Dir)
	pres.Subscribe(ctx, up.Results())

	if err := up.SelectMaskStyle(piimask.MaskStyle(cfg.Mask.Style)); err != nil {
		logger.Error().Str("errmsg", err.Error()).Msg("invalid mask style")
		up.Close()
		pres.Wait()
		return err
	}

	fmt.Println("piimask shell (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

loop:
	for {
		fmt.Printf("piimask (%s)> ", up.MaskStyle())
		if !scanner.Scan() {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			fmt.Println("Available commands: style [rectangle|blur], submit <path>, save, status, exit")

		case "style":
			if len(args) == 0 {
				fmt.Println("Current style:", up.MaskStyle())
				continue
			}
			if err := up.SelectMaskStyle(piimask.MaskStyle(args[0])); err != nil {
				fmt.Println(err)
			}

		case "submit":
			if len(args) == 0 {
				fmt.Println("Usage: submit <path>")
				continue
			}
			file, err := piimask.LoadFile(args[0])
			if err != nil {
				fmt.Println(err)
				continue
			}
			done := up.Submit(ctx, file)
			fmt.Println("processing...")
			select {
			case st := <-done:
				if st.State == piimask.StateSucceeded {
					fmt.Println("Masked image ready. Type 'save' to write", piimask.DownloadFileName)
				} else {
					fmt.Println(st.Message)
				}
			case <-ctx.Done():
				break loop
			}

		case "save":
			path, err := pres.Download()
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Println("Saved to", path)

		case "status":
			st := up.Status()
			fmt.Println("State:", st.State)
			if st.Message != "" {
				fmt.Println("Message:", st.Message)
			}

		case "exit", "quit":
			fmt.Println("Bye!")
			break loop

		default:
			fmt.Println("Unknown command:", cmd)
		}

		select {
		case <-ctx.Done():
			break loop
		default:
		}
	}

	up.Close()
	pres.Wait()
	return nil
}
