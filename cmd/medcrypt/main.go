// Command medcrypt encrypts patient files and manages doctor access grants
// against a local sqlite store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"params", "Show the configured domain parameters", paramsCommand},
	{"keygen", "Generate and store a key pair for a patient or doctor", keygenCommand},
	{"encrypt", "Encrypt a file under a patient's public key", encryptCommand},
	{"decrypt", "Decrypt a stored file as its owner or a granted doctor", decryptCommand},
	{"list", "List a patient's stored files", listCommand},
	{"grant", "Grant a doctor access to a patient's private key", grantCommand},
	{"recover", "Check that a doctor can recover a patient's key", recoverCommand},
	{"revoke", "Revoke a doctor's access", revokeCommand},
	{"audit", "Show the audit trail for a patient or doctor", auditCommand},
	{"health", "Check the database, S3 and Vault backends", healthCommand},
	{"version", "Show version information", versionCommand},
}

type app struct {
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stdout: stdout, stderr: stderr}
	if len(args) < 1 {
		a.printUsage()
		return fmt.Errorf("no command given")
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(ctx, a, args[1:])
		}
	}
	a.printUsage()
	return fmt.Errorf("unknown command: %s", args[0])
}

func (a *app) printUsage() {
	fmt.Fprintf(a.stderr, "Usage: medcrypt <command> [options]\n")
	fmt.Fprintf(a.stderr, "\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(a.stderr, "  %-8s  %s\n", c.name, c.summary)
	}
	fmt.Fprintf(a.stderr, "\nRun 'medcrypt <command> -h' for help on a specific command.\n")
}
