package confgen_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"code.cloudfoundry.org/lager"
	"code.cloudfoundry.org/lager/lagertest"
	. "github.com/agily/omicron/pkg/confgen"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type recordingRegistrar struct {
	registered [][2]string
	err        error
}

func (r *recordingRegistrar) RegisterService(ctx context.Context, logger lager.Logger, nodeID, configPath string) error {
	if r.err != nil {
		return r.err
	}
	r.registered = append(r.registered, [2]string{nodeID, configPath})
	return nil
}

var _ = Describe("Service", func() {
	var (
		dir       string
		registrar *recordingRegistrar
		subject   *Service

		ctx        context.Context
		cancelFunc context.CancelFunc
		logger     *lagertest.TestLogger

		request GenerateRequest
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "confgen")
		Expect(err).NotTo(HaveOccurred())

		registrar = &recordingRegistrar{}
		subject = NewService(dir, registrar)

		ctx, cancelFunc = context.WithTimeout(context.Background(), 1*time.Second)
		logger = lagertest.NewTestLogger("confgen-test")

		request = GenerateRequest{
			Generation: 1,
			Settings: NodeSettings{
				NodeID:          "node-1",
				ListenAddress:   "[::1]:9000",
				DataDirectory:   "/data/node-1",
				KeeperEndpoints: []string{"[::1]:9181", "[::1]:9182", "[::1]:9183"},
			},
		}
	})

	AfterEach(func() {
		cancelFunc()
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	Describe("#Generate", func() {
		It("writes the materialized config and registers the service", func() {
			config, err := subject.Generate(ctx, logger, request)

			Expect(err).NotTo(HaveOccurred())
			Expect(config.Generation).To(Equal(uint64(1)))
			Expect(config.ConfigPath).To(Equal(filepath.Join(dir, "node-1.json")))

			contents, err := os.ReadFile(config.ConfigPath)
			Expect(err).NotTo(HaveOccurred())

			var written NodeConfig
			Expect(json.Unmarshal(contents, &written)).To(Succeed())
			Expect(written.Settings).To(Equal(request.Settings))

			Expect(registrar.registered).To(HaveLen(1))
			Expect(registrar.registered[0][0]).To(Equal("node-1"))
		})

		It("rejects a generation that does not increase", func() {
			_, err := subject.Generate(ctx, logger, request)
			Expect(err).NotTo(HaveOccurred())

			_, err = subject.Generate(ctx, logger, request)
			Expect(err).To(Equal(ErrStaleGeneration))

			request.Generation = 0
			_, err = subject.Generate(ctx, logger, request)
			Expect(err).To(Equal(ErrStaleGeneration))
		})

		It("accepts strictly increasing generations", func() {
			_, err := subject.Generate(ctx, logger, request)
			Expect(err).NotTo(HaveOccurred())

			request.Generation = 5
			_, err = subject.Generate(ctx, logger, request)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects incomplete node settings", func() {
			request.Settings.DataDirectory = ""

			_, err := subject.Generate(ctx, logger, request)

			Expect(err).To(Equal(ErrInvalidNodeSettings))
		})

		It("does not advance the generation when registration fails", func() {
			registrar.err = errors.New("smf unavailable")

			_, err := subject.Generate(ctx, logger, request)
			Expect(err).To(HaveOccurred())

			registrar.err = nil
			_, err = subject.Generate(ctx, logger, request)
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
