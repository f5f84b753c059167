// Package tokens provides reconnection token stores. MemoryStore keeps tokens
// in process; RedisStore shares them across instances. Both satisfy
// core.TokenStore and are exercised by the same suite in tokenstoretest.
package tokens
