package env_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/luma/respkit/internal/env"
)

var _ = Describe("env", func() {
	Describe("LoadConfigFrom()", func() {
		It("uses the defaults", func() {
			conf, err := env.LoadConfigFrom(context.Background(), envconfig.MapLookuper(nil))
			Expect(err).To(Succeed())
			Expect(conf).To(Equal(&env.Config{
				Addr:     "127.0.0.1:6379",
				Protocol: 3,
				LogLevel: "info",
				MaxBuf:   16384,
			}))
		})

		It("reads RESPKIT_ variables", func() {
			conf, err := env.LoadConfigFrom(context.Background(), envconfig.MapLookuper(map[string]string{
				"RESPKIT_ADDR":       "10.0.0.1:7000",
				"RESPKIT_PROTOCOL":   "2",
				"RESPKIT_MAX_BUF":    "-1",
				"RESPKIT_DEBUG_HTTP": "true",
			}))
			Expect(err).To(Succeed())
			Expect(conf.Addr).To(Equal("10.0.0.1:7000"))
			Expect(conf.Protocol).To(Equal(2))
			Expect(conf.MaxBuf).To(Equal(-1))
			Expect(conf.DebugHTTP).To(BeTrue())
		})

		It("fails on malformed values", func() {
			_, err := env.LoadConfigFrom(context.Background(), envconfig.MapLookuper(map[string]string{
				"RESPKIT_PROTOCOL": "three",
			}))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("MakeLogger()", func() {
		It("builds a logger at the given level", func() {
			log, err := env.MakeLogger("warn")
			Expect(err).To(Succeed())
			Expect(log.Core().Enabled(zapcore.InfoLevel)).To(BeFalse())
			Expect(log.Core().Enabled(zapcore.WarnLevel)).To(BeTrue())
		})

		It("rejects unknown levels", func() {
			_, err := env.MakeLogger("loud")
			Expect(err).To(MatchError(ContainSubstring("Failed to parse log level")))
		})
	})
})
