package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/academia/core/assessment"
	"github.com/trezcool/academia/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db           *sqlx.DB
	usrRepo      user.Repository
	questionRepo assessment.QuestionRepository
	resultRepo   assessment.ResultRepository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-admin] - update or create a user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  migrate COMMAND [args] - run database migrations (goose commands)")
	fmt.Println("  importquestions -file FILE.xlsx - import questions into the bank")
	fmt.Println("  exportresults -file FILE.xlsx [-level LEVEL] - export placement results")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserIsAdmin := addUserCmd.Bool("admin", false, "Grant all roles to the user.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	importQuestionsCmd := flag.NewFlagSet("importquestions", flag.ExitOnError)
	importQuestionsFile := importQuestionsCmd.String("file", "", "Path to the .xlsx file to import.")

	exportResultsCmd := flag.NewFlagSet("exportresults", flag.ExitOnError)
	exportResultsFile := exportResultsCmd.String("file", "", "Path to the .xlsx file to write.")
	exportResultsLevel := exportResultsCmd.String("level", "", "Only export results with this placement level.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserUname, *addUserEmail, pwd, *addUserIsAdmin)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "importquestions":
		if err := importQuestionsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importQuestionsFile == "" {
			importQuestionsCmd.Usage()
			return errHelp
		}
		return cli.importQuestions(*importQuestionsFile)
	case "exportresults":
		if err := exportResultsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *exportResultsFile == "" {
			exportResultsCmd.Usage()
			return errHelp
		}
		return cli.exportResults(*exportResultsFile, assessment.Level(*exportResultsLevel))
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
