package main

func main() {
	err := newRootCmd().Execute()

	flushLogs()

	if err != nil {
		exitOnError(err)
	}
}
