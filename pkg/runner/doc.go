/*
Package runner runs a conversation interactively, one line at a time.

It is the bridge between a Conversation (usually the flowbot Engine) and a
person at a terminal or a script on a pipe. Every line read by the IOHandler
is sanitized, sent as one inbound message, and the turn result is printed.

# Key Components

  - Runner: the chat loop. Ctrl+C cancels the running turn; a second one
    (or EOF, or "sair") ends the chat. The session is persisted by the
    Conversation, so the same session ID resumes later.
  - TextHandler: line-based terminal IO with optional markdown rendering.
  - JSONHandler: JSON lines for scripts and tests.
  - Middleware: turn interceptors (logging, timeouts, /reiniciar).
  - SanitizeInput: the size, UTF-8 and control-character policy shared by
    every transport.

# Usage

	r := runner.New(engine,
		runner.WithFlowID("atendimento"),
		runner.WithSessionID("5511999990000"),
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)
	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}
*/
package runner
