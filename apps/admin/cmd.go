package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/Mavuisra/naklass-sub005/core/school"
	"github.com/Mavuisra/naklass-sub005/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sqlx.DB
	engine    string
	usrSvc    *user.Service
	schoolSvc *school.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS]                                - run a goose command (up, down, status, version, redo, ...)")
	fmt.Println("  addsuperadmin -username USERNAME -email EMAIL [-name] - create or reset a platform super-admin")
	fmt.Println("  resetpassword -username USERNAME|EMAIL [-school CODE] - reset user's password")
}

func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addSuperAdminCmd := flag.NewFlagSet("addsuperadmin", flag.ContinueOnError)
	addSuperAdminUname := addSuperAdminCmd.String("username", "", "The super-admin's username. The password will be prompted next.")
	addSuperAdminEmail := addSuperAdminCmd.String("email", "", "The super-admin's email.")
	addSuperAdminName := addSuperAdminCmd.String("name", "", "The super-admin's full name (defaults to the username).")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")
	resetPasswordSchool := resetPasswordCmd.String("school", "", "The code of the user's school (required when the username is not unique).")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addsuperadmin":
		if err := addSuperAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addSuperAdminUname == "" || *addSuperAdminEmail == "" {
			addSuperAdminCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addSuperAdminCmd.Usage()
			return errHelp
		}
		return cli.addSuperAdmin(*addSuperAdminName, *addSuperAdminUname, *addSuperAdminEmail, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordSchool, *resetPasswordUname, pwd)

	default:
		cli.printUsage()
		return errHelp
	}
}
