package dispatch

// buildTable assembles the full command table from each command-family
// file's register function. Grounded on the teacher's route-table
// construction in cmd/zmux-server/main.go: one function per resource group,
// all called from a single place at startup rather than scattered init()s.
func buildTable() map[string]*Command {
	t := make(map[string]*Command, 160)
	registerConnCommands(t)
	registerStringCommands(t)
	registerListCommands(t)
	registerHashCommands(t)
	registerSetCommands(t)
	registerZSetCommands(t)
	registerGenericCommands(t)
	registerChildScanCommands(t)
	registerStreamCommands(t)
	registerBlockingCommands(t)
	return t
}
