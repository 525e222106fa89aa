package main

import "TradeBot/internal/cli"

func main() {
	cli.Execute()
}
