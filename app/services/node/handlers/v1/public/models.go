package public

// info is the top level node summary returned by the info endpoint.
type info struct {
	Host              string `json:"host"`
	MinerAddress      string `json:"miner_address"`
	Height            uint64 `json:"height"`
	LatestHash        string `json:"latest_hash"`
	Difficulty        int    `json:"difficulty"`
	MempoolLength     int    `json:"mempool_length"`
	KnownPeers        int    `json:"known_peers"`
	CirculatingSupply uint64 `json:"circulating_supply"`
}

// balance reports a single address and its settled balance.
type balance struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

// balancesResp is the envelope for the balances endpoint.
type balancesResp struct {
	LatestBlock string    `json:"latest_block"`
	Uncommitted int       `json:"uncommitted"`
	Balances    []balance `json:"balances"`
}
