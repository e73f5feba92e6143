package main

import "github.com/gsccoin/blockchain/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
