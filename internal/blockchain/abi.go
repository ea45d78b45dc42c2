package blockchain

// CrowdfundABI is the interface of the MilestoneCrowdfund contract: the events
// reconciliation consumes, the view functions it reads and the owner-only
// setters the platform key may call.
const CrowdfundABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "id", "type": "uint256"},
			{"indexed": true, "name": "creator", "type": "address"},
			{"indexed": false, "name": "milestoneCount", "type": "uint8"},
			{"indexed": false, "name": "token", "type": "address"},
			{"indexed": false, "name": "goal", "type": "uint256"},
			{"indexed": false, "name": "deadline", "type": "uint256"}
		],
		"name": "CampaignCreated",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "id", "type": "uint256"},
			{"indexed": true, "name": "backer", "type": "address"},
			{"indexed": false, "name": "grossAmount", "type": "uint256"},
			{"indexed": false, "name": "feeAmount", "type": "uint256"},
			{"indexed": false, "name": "netAmount", "type": "uint256"},
			{"indexed": false, "name": "tipAmount", "type": "uint256"},
			{"indexed": false, "name": "milestoneIndex", "type": "uint8"}
		],
		"name": "Pledged",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "id", "type": "uint256"},
			{"indexed": true, "name": "backer", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "Unpledged",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "id", "type": "uint256"},
			{"indexed": false, "name": "newState", "type": "uint8"}
		],
		"name": "CampaignStateChanged",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "id", "type": "uint256"},
			{"indexed": true, "name": "index", "type": "uint256"},
			{"indexed": false, "name": "description", "type": "string"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "MilestoneApproved",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "id", "type": "uint256"},
			{"indexed": true, "name": "index", "type": "uint256"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "MilestoneWithdrawn",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "id", "type": "uint256"},
			{"indexed": true, "name": "backer", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "Refunded",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "wallet", "type": "address"}
		],
		"name": "PlatformWalletUpdated",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "feeBps", "type": "uint96"}
		],
		"name": "FeeUpdated",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "token", "type": "address"},
			{"indexed": false, "name": "allowed", "type": "bool"}
		],
		"name": "TokenAllowlistUpdated",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "account", "type": "address"}
		],
		"name": "Paused",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "account", "type": "address"}
		],
		"name": "Unpaused",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "previousOwner", "type": "address"},
			{"indexed": true, "name": "newOwner", "type": "address"}
		],
		"name": "OwnershipTransferred",
		"type": "event"
	},
	{
		"inputs": [{"name": "id", "type": "uint256"}],
		"name": "getCampaignCore",
		"outputs": [
			{"name": "creator", "type": "address"},
			{"name": "token", "type": "address"},
			{"name": "goal", "type": "uint256"},
			{"name": "pledged", "type": "uint256"},
			{"name": "deadline", "type": "uint64"},
			{"name": "state", "type": "uint8"},
			{"name": "milestoneCount", "type": "uint8"},
			{"name": "milestonesReleased", "type": "uint8"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "id", "type": "uint256"},
			{"name": "index", "type": "uint256"}
		],
		"name": "getMilestone",
		"outputs": [
			{"name": "amount", "type": "uint256"},
			{"name": "approved", "type": "bool"},
			{"name": "withdrawn", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "campaignCount",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "platformWallet",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "owner",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "paused",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "feeBps",
		"outputs": [{"name": "", "type": "uint96"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "pause",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "unpause",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "newFeeBps", "type": "uint96"}],
		"name": "setFeeBps",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "wallet", "type": "address"}],
		"name": "setPlatformWallet",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "token", "type": "address"},
			{"name": "allowed", "type": "bool"}
		],
		"name": "setTokenAllowed",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "newOwner", "type": "address"}],
		"name": "transferOwnership",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "id", "type": "uint256"},
			{"name": "index", "type": "uint256"}
		],
		"name": "approveMilestone",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "id", "type": "uint256"},
			{"name": "index", "type": "uint256"}
		],
		"name": "withdrawMilestone",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "id", "type": "uint256"}],
		"name": "finalize",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`
