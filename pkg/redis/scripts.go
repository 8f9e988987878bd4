package redis

// incrWindowScript increments a counter and starts its window on the first
// hit, in one round trip so a crash cannot leave a counter without a TTL.
const incrWindowScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`

// compareAndDeleteScript removes KEYS[1] only while it still holds ARGV[1].
const compareAndDeleteScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// compareAndSwapScript overwrites KEYS[1] with ARGV[2] and a fresh PX of
// ARGV[3] only while it still holds ARGV[1].
const compareAndSwapScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
  return 1
end
return 0
`
