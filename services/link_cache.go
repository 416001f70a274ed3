package services

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// linkCache はエクスポート1回分のリンク取得結果をメモ化します。
// 同じキーが複数回現れてもJIRAへの問い合わせは1回になります。
type linkCache struct {
	next  LinkResolver
	cache *gocache.Cache
}

func newLinkCache(next LinkResolver, ttl time.Duration) *linkCache {
	return &linkCache{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *linkCache) ResolveLinks(ctx context.Context, issueKey string) string {
	if v, ok := c.cache.Get(issueKey); ok {
		return v.(string)
	}
	links := c.next.ResolveLinks(ctx, issueKey)
	c.cache.SetDefault(issueKey, links)
	return links
}
