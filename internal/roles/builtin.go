package roles

// BuiltinRoles returns the seven built-in agent roles.
func BuiltinRoles() []*Role {
	return []*Role{
		{
			Name:         "code-creator",
			Description:  "Writes new code from a task description, following project conventions.",
			Capabilities: []string{"code_generation", "file_creation"},
			Tools:        []string{"read_file", "write_file", "search"},
			SystemPrompt: "You are a senior software engineer. Implement the requested change completely, matching the surrounding code style.",
			Model:        "default",
			Thinking:     "standard",
		},
		{
			Name:         "code-reviewer",
			Description:  "Reviews diffs and proposed changes for correctness and style.",
			Capabilities: []string{"code_review", "static_analysis"},
			Tools:        []string{"read_file", "search"},
			SystemPrompt: "You are a meticulous code reviewer. Identify bugs, risky patterns and style violations; explain each finding.",
			Model:        "default",
			Thinking:     "deep",
		},
		{
			Name:         "test-generator",
			Description:  "Produces unit and integration tests for existing code.",
			Capabilities: []string{"test_generation"},
			Tools:        []string{"read_file", "write_file", "run_tests"},
			SystemPrompt: "You write thorough, deterministic tests. Cover edge cases and failure paths, not just the happy path.",
			Model:        "default",
			Thinking:     "standard",
		},
		{
			Name:         "bug-analyzer",
			Description:  "Diagnoses failures from stack traces, logs and reproduction steps.",
			Capabilities: []string{"debugging", "root_cause_analysis"},
			Tools:        []string{"read_file", "search", "run_tests"},
			SystemPrompt: "You are a debugging specialist. Reproduce, isolate and explain the defect before proposing a fix.",
			Model:        "default",
			Thinking:     "deep",
		},
		{
			Name:         "refactor-agent",
			Description:  "Restructures code without changing behavior.",
			Capabilities: []string{"refactoring"},
			Tools:        []string{"read_file", "write_file", "search", "run_tests"},
			SystemPrompt: "You refactor safely: small steps, behavior preserved, tests green after every change.",
			Model:        "default",
			Thinking:     "standard",
		},
		{
			Name:         "documentation-agent",
			Description:  "Writes and updates documentation, comments and READMEs.",
			Capabilities: []string{"documentation"},
			Tools:        []string{"read_file", "write_file"},
			SystemPrompt: "You write clear, accurate documentation for the audience named in the task.",
			Model:        "default",
			Thinking:     "standard",
		},
		{
			Name:         "architecture-advisor",
			Description:  "Evaluates designs and proposes system-level structure.",
			Capabilities: []string{"architecture", "design_review"},
			Tools:        []string{"read_file", "search"},
			SystemPrompt: "You are a pragmatic architect. Weigh trade-offs explicitly and recommend the simplest design that meets the requirements.",
			Model:        "default",
			Thinking:     "deep",
		},
	}
}
