package chainadapter

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI fragments for the contract surfaces named in the external interfaces
// the agent talks to. Only the methods and events the agent actually calls
// are declared; this is not the full production ABI of any contract.
const hubABIJSON = `[
 {"type":"function","name":"getEndpointCount","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"endpointIds","stateMutability":"view","inputs":[{"type":"uint256","name":"index"}],"outputs":[{"type":"bytes32"}]},
 {"type":"function","name":"getEndpoint","stateMutability":"view","inputs":[{"type":"bytes32","name":"id"}],"outputs":[
   {"type":"string","name":"url"},
   {"type":"string","name":"inputFormat"},
   {"type":"string","name":"outputFormat"},
   {"type":"uint256","name":"baseCost"},
   {"type":"uint256","name":"maxResponseBytes"},
   {"type":"uint256","name":"callbackGasLimit"},
   {"type":"uint256","name":"estimatedGasWei"},
   {"type":"address","name":"owner"},
   {"type":"bool","name":"active"},
   {"type":"uint256","name":"registeredAt"}
 ]},
 {"type":"function","name":"getEthPrice","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"estimateGasReimbursement","stateMutability":"view","inputs":[{"type":"uint256","name":"weiCost"}],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"getEndpointPrice","stateMutability":"view","inputs":[{"type":"bytes32","name":"id"}],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"getBalance","stateMutability":"view","inputs":[{"type":"address","name":"who"}],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"protocolFeesAccumulator","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"getRequest","stateMutability":"view","inputs":[{"type":"bytes32","name":"requestId"}],"outputs":[
   {"type":"bytes32","name":"endpointId"},
   {"type":"address","name":"requester"},
   {"type":"address","name":"agent"},
   {"type":"uint256","name":"totalCost"},
   {"type":"uint256","name":"baseCost"},
   {"type":"uint256","name":"markup"},
   {"type":"uint256","name":"gasReimburse"},
   {"type":"uint256","name":"createdAt"},
   {"type":"uint8","name":"status"},
   {"type":"bytes","name":"params"},
   {"type":"bool","name":"wantsCallback"}
 ]},
 {"type":"function","name":"getCallback","stateMutability":"view","inputs":[{"type":"bytes32","name":"requestId"}],"outputs":[{"type":"bytes"}]},
 {"type":"function","name":"getAgentStats","stateMutability":"view","inputs":[{"type":"address","name":"agent"}],"outputs":[
   {"type":"uint256","name":"fulfilled"},
   {"type":"uint256","name":"earned"}
 ]},
 {"type":"function","name":"getHubStats","stateMutability":"view","inputs":[],"outputs":[
   {"type":"uint64","name":"totalRequests"},
   {"type":"uint64","name":"totalFulfilled"},
   {"type":"uint64","name":"totalCancelled"},
   {"type":"uint256","name":"protocolFees"},
   {"type":"uint64","name":"servedRequestSeq"}
 ]},
 {"type":"function","name":"depositUSDC","stateMutability":"nonpayable","inputs":[{"type":"uint256","name":"amount"}],"outputs":[]},
 {"type":"function","name":"createRequest","stateMutability":"nonpayable","inputs":[{"type":"bytes32","name":"endpointId"},{"type":"bytes","name":"params"}],"outputs":[{"type":"bytes32"}]},
 {"type":"function","name":"createRequestWithCallback","stateMutability":"nonpayable","inputs":[{"type":"bytes32","name":"endpointId"},{"type":"bytes","name":"params"}],"outputs":[{"type":"bytes32"}]},
 {"type":"function","name":"fulfillRequest","stateMutability":"nonpayable","inputs":[{"type":"bytes32","name":"requestId"},{"type":"bytes","name":"response"},{"type":"bytes32","name":"sessionId"}],"outputs":[]},
 {"type":"function","name":"cancelRequest","stateMutability":"nonpayable","inputs":[{"type":"bytes32","name":"requestId"}],"outputs":[]},
 {"type":"function","name":"flushProtocolFeesToBuyback","stateMutability":"nonpayable","inputs":[],"outputs":[]},
 {"type":"event","name":"RequestCreated","inputs":[{"type":"bytes32","name":"requestId","indexed":true},{"type":"bytes32","name":"endpointId","indexed":true},{"type":"address","name":"requester","indexed":false}]},
 {"type":"event","name":"RequestFulfilled","inputs":[{"type":"bytes32","name":"requestId","indexed":true},{"type":"address","name":"agent","indexed":true}]},
 {"type":"event","name":"RequestCancelled","inputs":[{"type":"bytes32","name":"requestId","indexed":true}]},
 {"type":"event","name":"CallbackExecuted","inputs":[{"type":"bytes32","name":"requestId","indexed":true},{"type":"bool","name":"success","indexed":false}]},
 {"type":"event","name":"PriceOracleUpdated","inputs":[{"type":"uint256","name":"newEthPriceUSDC","indexed":false}]},
 {"type":"event","name":"EndpointUpdated","inputs":[{"type":"bytes32","name":"endpointId","indexed":true}]},
 {"type":"event","name":"EndpointGasConfigUpdated","inputs":[{"type":"bytes32","name":"endpointId","indexed":true},{"type":"uint256","name":"estimatedGasWei","indexed":false}]}
]`

const keepAliveABIJSON = `[
 {"type":"function","name":"getSubscriptionCount","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"subscriptionIds","stateMutability":"view","inputs":[{"type":"uint256","name":"index"}],"outputs":[{"type":"bytes32"}]},
 {"type":"function","name":"getSubscription","stateMutability":"view","inputs":[{"type":"bytes32","name":"id"}],"outputs":[
   {"type":"address","name":"consumer"},
   {"type":"address","name":"callbackTarget"},
   {"type":"uint256","name":"callbackGasLimit"},
   {"type":"uint256","name":"intervalSeconds"},
   {"type":"uint256","name":"feePerCycle"},
   {"type":"uint256","name":"estimatedGasWei"},
   {"type":"uint256","name":"maxFulfillments"},
   {"type":"uint256","name":"fulfillmentCount"},
   {"type":"uint256","name":"lastFulfilledAt"},
   {"type":"bool","name":"active"}
 ]},
 {"type":"function","name":"getSubscriptionCost","stateMutability":"view","inputs":[{"type":"bytes32","name":"id"}],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"isReady","stateMutability":"view","inputs":[{"type":"bytes32","name":"id"}],"outputs":[{"type":"bool"}]},
 {"type":"function","name":"getBalance","stateMutability":"view","inputs":[{"type":"address","name":"who"}],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"getEthPrice","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"estimateGasReimbursement","stateMutability":"view","inputs":[{"type":"uint256","name":"weiCost"}],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"getStats","stateMutability":"view","inputs":[],"outputs":[
   {"type":"uint64","name":"activeSubscriptions"},
   {"type":"uint64","name":"totalFulfillments"}
 ]},
 {"type":"function","name":"depositUSDC","stateMutability":"nonpayable","inputs":[{"type":"uint256","name":"amount"}],"outputs":[]},
 {"type":"function","name":"createSubscription","stateMutability":"nonpayable","inputs":[
   {"type":"address","name":"callbackTarget"},
   {"type":"uint256","name":"callbackGasLimit"},
   {"type":"uint256","name":"intervalSeconds"},
   {"type":"uint256","name":"feePerCycle"},
   {"type":"uint256","name":"maxFulfillments"}
 ],"outputs":[{"type":"bytes32"}]},
 {"type":"function","name":"updateSubscription","stateMutability":"nonpayable","inputs":[
   {"type":"bytes32","name":"id"},
   {"type":"uint256","name":"callbackGasLimit"},
   {"type":"uint256","name":"intervalSeconds"},
   {"type":"uint256","name":"feePerCycle"}
 ],"outputs":[]},
 {"type":"function","name":"cancelSubscription","stateMutability":"nonpayable","inputs":[{"type":"bytes32","name":"id"}],"outputs":[]},
 {"type":"function","name":"fulfill","stateMutability":"nonpayable","inputs":[{"type":"bytes32","name":"id"}],"outputs":[]},
 {"type":"event","name":"SubscriptionCreated","inputs":[{"type":"bytes32","name":"id","indexed":true},{"type":"address","name":"consumer","indexed":true}]},
 {"type":"event","name":"SubscriptionFulfilled","inputs":[{"type":"bytes32","name":"id","indexed":true}]},
 {"type":"event","name":"SubscriptionCancelled","inputs":[{"type":"bytes32","name":"id","indexed":true}]}
]`

const stakingABIJSON = `[
 {"type":"function","name":"getStakeInfo","stateMutability":"view","inputs":[{"type":"address","name":"who"}],"outputs":[
   {"type":"uint256","name":"staked"},
   {"type":"uint256","name":"pending"}
 ]},
 {"type":"function","name":"pendingRewards","stateMutability":"view","inputs":[{"type":"address","name":"who"}],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"totalStaked","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"getReputation","stateMutability":"view","inputs":[{"type":"address","name":"who"}],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"isEligibleAgent","stateMutability":"view","inputs":[{"type":"address","name":"who"}],"outputs":[{"type":"bool"}]},
 {"type":"function","name":"stake","stateMutability":"nonpayable","inputs":[{"type":"uint256","name":"amount"}],"outputs":[]},
 {"type":"function","name":"requestUnstake","stateMutability":"nonpayable","inputs":[{"type":"uint256","name":"amount"}],"outputs":[]},
 {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[],"outputs":[]},
 {"type":"function","name":"claimRewards","stateMutability":"nonpayable","inputs":[],"outputs":[]},
 {"type":"function","name":"compound","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

const swapRouterABIJSON = `[
 {"type":"function","name":"swap","stateMutability":"nonpayable","inputs":[{"type":"uint256","name":"minMid"}],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"swapToToken","stateMutability":"nonpayable","inputs":[
   {"type":"bytes32","name":"poolKey"},
   {"type":"uint256","name":"minMid"},
   {"type":"uint256","name":"minOut"},
   {"type":"bool","name":"midIsToken0"}
 ],"outputs":[{"type":"uint256"}]}
]`

const erc20ABIJSON = `[
 {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"type":"address","name":"owner"},{"type":"address","name":"spender"}],"outputs":[{"type":"uint256"}]},
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"type":"address","name":"spender"},{"type":"uint256","name":"amount"}],"outputs":[{"type":"bool"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"type":"address","name":"who"}],"outputs":[{"type":"uint256"}]}
]`

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("chainadapter: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

var (
	hubABI        = mustParseABI(hubABIJSON)
	keepAliveABI  = mustParseABI(keepAliveABIJSON)
	stakingABI    = mustParseABI(stakingABIJSON)
	swapRouterABI = mustParseABI(swapRouterABIJSON)
	erc20ABI      = mustParseABI(erc20ABIJSON)
)
