// Command grantctl analyzes a grant portfolio from the terminal.
//
//	grantctl analyze --db grants.db --as-of 2025-06-30
//	grantctl analyze --snapshot portfolio.json --json
//	grantctl import portfolio.json --db grants.db
//	grantctl config --config grants.toml
package main

func main() {
	Execute()
}
