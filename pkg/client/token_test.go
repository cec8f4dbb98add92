package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("TokenClient", func() {
	var (
		ctx    context.Context
		calls  atomic.Int32
		server *httptest.Server
		tc     *TokenClient
		now    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		calls.Store(0)
		now = time.Now()

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.URL.Path).To(Equal("/token"))
			Expect(r.Header.Get("Authorization")).To(Equal("Basic dGVzdA=="))

			var body map[string]string
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			n := calls.Add(1)
			json.NewEncoder(w).Encode(map[string]string{
				"access_token": fmt.Sprintf("token-%s-%d", body["domainid"], n),
			})
		}))

		tc = NewTokenClient(server.URL, "Basic dGVzdA==", 3*time.Hour)
		tc.now = func() time.Time { return now }
	})

	AfterEach(func() {
		server.Close()
	})

	It("caches tokens per domain until the TTL expires", func() {
		t1, err := tc.GetToken(ctx, "AB12345")
		Expect(err).NotTo(HaveOccurred())
		Expect(t1).To(Equal("token-AB12345-1"))

		t2, err := tc.GetToken(ctx, "AB12345")
		Expect(err).NotTo(HaveOccurred())
		Expect(t2).To(Equal(t1))
		Expect(calls.Load()).To(Equal(int32(1)))

		other, err := tc.GetToken(ctx, "CD67890")
		Expect(err).NotTo(HaveOccurred())
		Expect(other).NotTo(Equal(t1))
		Expect(calls.Load()).To(Equal(int32(2)))
	})

	It("re-fetches after the TTL runs out", func() {
		_, err := tc.GetToken(ctx, "AB12345")
		Expect(err).NotTo(HaveOccurred())

		now = now.Add(3*time.Hour + time.Minute)
		t2, err := tc.GetToken(ctx, "AB12345")
		Expect(err).NotTo(HaveOccurred())
		Expect(t2).To(Equal("token-AB12345-2"))
	})

	It("bypasses the cache on forced refresh", func() {
		_, err := tc.GetToken(ctx, "AB12345")
		Expect(err).NotTo(HaveOccurred())

		t2, err := tc.RefreshToken(ctx, "AB12345")
		Expect(err).NotTo(HaveOccurred())
		Expect(t2).To(Equal("token-AB12345-2"))
	})

	It("re-fetches after ClearToken", func() {
		_, err := tc.GetToken(ctx, "AB12345")
		Expect(err).NotTo(HaveOccurred())

		tc.ClearToken("AB12345")
		_, err = tc.GetToken(ctx, "AB12345")
		Expect(err).NotTo(HaveOccurred())
		Expect(calls.Load()).To(Equal(int32(2)))
	})

	It("returns a token error when the endpoint rejects", func() {
		rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
		}))
		defer rejecting.Close()

		bad := NewTokenClient(rejecting.URL, "Basic nope", time.Hour)
		_, err := bad.GetToken(ctx, "AB12345")
		Expect(err).To(HaveOccurred())
	})
})
