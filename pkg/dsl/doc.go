/*
Package dsl builds flow graphs in Go instead of JSON or YAML documents.

It is useful for tests, generated flows and embedding a flow in a binary.
Nodes keep the order they were added in. A flow needs exactly one start node.

	b := dsl.New("cadastro")
	b.Start("start").Go("ask")
	b.Input("ask", "Qual o seu nome?").Set("variable", "nome").Go("hi")
	b.Message("hi", "Prazer, {nome}!").Go("bye")
	b.End("bye")

	loader, err := b.Loader()
	// ... pass loader to flowbot.New(dir, flowbot.WithLoader(loader))
*/
package dsl
