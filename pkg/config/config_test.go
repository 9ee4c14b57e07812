package config

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func setEnv(key, value string) {
	previous, had := os.LookupEnv(key)
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(func() {
		if had {
			_ = os.Setenv(key, previous)
			return
		}
		_ = os.Unsetenv(key)
	})
}

var _ = Describe("Config", func() {
	Describe("DBConfig.GetDSN", func() {
		It("prefers DATABASE_URL and rewrites the postgres scheme", func() {
			cfg := DBConfig{URL: "postgres://u:p@db:5432/app", Host: "ignored"}
			Expect(cfg.GetDSN()).To(Equal("postgresql://u:p@db:5432/app"))
		})

		It("builds a key/value DSN from the host parts", func() {
			cfg := DBConfig{Host: "h", Port: "5432", User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
			Expect(cfg.GetDSN()).To(Equal("host=h port=5432 user=u password=p dbname=d sslmode=disable"))
		})
	})

	Describe("Load", func() {
		It("applies defaults", func() {
			setEnv("APP_ENV", "development")
			setEnv("SECRET_KEY", "")

			cfg, err := Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.JWT.AccessTokenExpire).To(Equal(30 * time.Minute))
			Expect(cfg.JWT.RefreshTokenExpire).To(Equal(7 * 24 * time.Hour))
			Expect(cfg.JWT.SecretKey).NotTo(BeEmpty())
			Expect(cfg.AI.TogetherModel).To(Equal("Qwen/Qwen2-VL-72B-Instruct"))
			Expect(cfg.Extraction.MaxAttempts).To(Equal(3))
			Expect(cfg.Extraction.ReclaimMinIdle).To(Equal(5 * time.Minute))
			Expect(cfg.Extraction.ReclaimInterval).To(Equal(time.Minute))
		})

		It("splits CORS_ORIGINS on commas", func() {
			setEnv("CORS_ORIGINS", "http://a.test, http://b.test,,")

			cfg, err := Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Server.CORSOrigins).To(Equal([]string{"http://a.test", "http://b.test"}))
		})

		It("reads token lifetimes in minutes and days", func() {
			setEnv("ACCESS_TOKEN_EXPIRE_MINUTES", "5")
			setEnv("REFRESH_TOKEN_EXPIRE_DAYS", "2")

			cfg, err := Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.JWT.AccessTokenExpire).To(Equal(5 * time.Minute))
			Expect(cfg.JWT.RefreshTokenExpire).To(Equal(48 * time.Hour))
		})

		It("requires SECRET_KEY in production", func() {
			setEnv("APP_ENV", "production")
			setEnv("SECRET_KEY", "")

			_, err := Load()
			Expect(err).To(MatchError(ContainSubstring("SECRET_KEY")))
		})

		It("rejects algorithms other than HS256", func() {
			setEnv("ALGORITHM", "RS256")

			_, err := Load()
			Expect(err).To(HaveOccurred())
		})
	})

	It("masks the password in logged DSNs", func() {
		Expect(maskDSN("postgresql://u:secret@db/app")).NotTo(ContainSubstring("secret"))
		Expect(maskDSN("host=h password=secret")).To(Equal("***MASKED***"))
	})
})
