package credits

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "truthguard:credits:"

// deductScript provisions the key, then decrements only if the balance covers
// the cost. Returns {charged, balance} with charged 0 when it does not.
var deductScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[2], 'NX')
local bal = tonumber(redis.call('GET', KEYS[1]))
local cost = tonumber(ARGV[1])
if bal < cost then
  return {0, bal}
end
return {1, redis.call('DECRBY', KEYS[1], cost)}
`)

var addScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[2], 'NX')
return redis.call('INCRBY', KEYS[1], ARGV[1])
`)

var balanceScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1], 'NX')
return tonumber(redis.call('GET', KEYS[1]))
`)

// RedisLedger keeps balances as Redis integers updated by Lua scripts
type RedisLedger struct {
	rdb     *redis.Client
	initial int
}

// NewRedisLedger creates a ledger on an existing client
func NewRedisLedger(rdb *redis.Client, initialBalance int) *RedisLedger {
	return &RedisLedger{rdb: rdb, initial: initialBalance}
}

// Deduct runs the conditional decrement script
func (l *RedisLedger) Deduct(ctx context.Context, accountID string, cost int) (int, error) {
	if err := checkArgs(accountID, cost); err != nil {
		return 0, err
	}

	res, err := deductScript.Run(ctx, l.rdb, []string{keyPrefix + accountID}, cost, l.initial).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("deduct credits: %w", err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("deduct credits: unexpected script reply %v", res)
	}
	if res[0] == 0 {
		return int(res[1]), ErrInsufficientCredits
	}
	return int(res[1]), nil
}

// Add credits amount to the account
func (l *RedisLedger) Add(ctx context.Context, accountID string, amount int) (int, error) {
	if err := checkArgs(accountID, amount); err != nil {
		return 0, err
	}

	bal, err := addScript.Run(ctx, l.rdb, []string{keyPrefix + accountID}, amount, l.initial).Int()
	if err != nil {
		return 0, fmt.Errorf("add credits: %w", err)
	}
	return bal, nil
}

// Balance returns the current balance
func (l *RedisLedger) Balance(ctx context.Context, accountID string) (int, error) {
	if err := checkArgs(accountID, 0); err != nil {
		return 0, err
	}

	bal, err := balanceScript.Run(ctx, l.rdb, []string{keyPrefix + accountID}, l.initial).Int()
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return bal, nil
}
