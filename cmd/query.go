package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	v1 "coursematch/handler/http/v1"
	"coursematch/src/core/composer"
	"coursematch/src/core/session"
)

var queryCmd = &cobra.Command{
	Use:   "query <job description>",
	Short: "Suggest programs for a job description, and optionally their courses",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().Bool("courses", false, "also list the courses of the suggested programs")
	queryCmd.Flags().String("index", "", "index directory (default index.dir)")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	withCourses, _ := cmd.Flags().GetBool("courses")

	holder, err := loadIndex(flagOrConfig(cmd, "index", "index.dir"), false)
	if err != nil {
		return err
	}
	controller, err := newController(holder)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	s := session.New("cli")
	answer, err := controller.OnJobDescription(ctx, s, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if answer.Kind == composer.NoAnswer {
		fmt.Fprintln(out, v1.NoAnswerMessage)
		return nil
	}
	fmt.Fprintln(out, answer.Text)
	fmt.Fprintf(out, "\nsources: %s\n", strings.Join(answer.Sources, ", "))

	if !withCourses {
		return nil
	}
	courses, err := controller.OnCourseLookupAction(ctx, s, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s\n", courses.Text)
	return nil
}
