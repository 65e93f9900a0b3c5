package composer

import (
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"coursematch/src/core/rag"
)

const (
	TemplateProgram = "program"
	TemplateCourse  = "course"
)

// DefaultProgramTemplate asks for the programs and faculties matching a job description.
const DefaultProgramTemplate = `Determine which programs and faculties the entered job description should be associated with. List all that are applicable.  You will get a reward for the more programs you list as long as they are somewhat applicable.  List them in the following format:  Program:..... new line Faculty:..... 2 new lines If you cannot answer the question with the context, please respond with 'No Program':

Context:
{context}

Question:
{question}
`

// DefaultCourseTemplate asks for the courses of each program in a prior answer.
const DefaultCourseTemplate = `List the courses for each program.':

Context:
{context}

Question:
{question}
`

// Template is a named f-string prompt with {context} and {question} placeholders.
type Template struct {
	name   string
	prompt prompts.PromptTemplate
}

// NewTemplate checks that text references both placeholders and renders cleanly.
func NewTemplate(name, text string) (Template, error) {
	field := "prompts." + name
	for _, v := range []string{"context", "question"} {
		if !strings.Contains(text, "{"+v+"}") {
			return Template{}, &rag.ConfigurationError{Field: field, Reason: "missing {" + v + "} placeholder"}
		}
	}
	vars := []string{"context", "question"}
	if err := prompts.CheckValidTemplate(text, prompts.TemplateFormatFString, vars); err != nil {
		return Template{}, &rag.ConfigurationError{Field: field, Reason: err.Error()}
	}
	return Template{
		name: name,
		prompt: prompts.PromptTemplate{
			Template:       text,
			InputVariables: vars,
			TemplateFormat: prompts.TemplateFormatFString,
		},
	}, nil
}

func (t Template) Name() string {
	return t.name
}

// Render fills the template.
func (t Template) Render(context, question string) (string, error) {
	return t.prompt.Format(map[string]any{
		"context":  context,
		"question": question,
	})
}
