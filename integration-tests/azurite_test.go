package integration_tests

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vcscsvcscs/azblobfile/pkg/blobfile"
	"go.uber.org/zap"
)

// Well-known Azurite development account
const (
	azuriteAccountName = "devstoreaccount1"
	azuriteAccountKey  = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
	azuriteImage       = "mcr.microsoft.com/azure-storage/azurite:3.33.0"
)

var (
	account  blobfile.Account
	setupErr error
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	// USE_REAL_AZURE runs the suite against the account in the environment instead of Azurite
	if os.Getenv("USE_REAL_AZURE") == "true" {
		account = blobfile.Account{
			Name:             os.Getenv("AZURE_STORAGE_ACCOUNT_NAME"),
			Key:              os.Getenv("AZURE_STORAGE_ACCOUNT_KEY"),
			ConnectionString: os.Getenv("AZURE_STORAGE_CONNECTION_STRING"),
		}
		os.Exit(m.Run())
	}

	container, err := startAzurite(ctx)
	if err != nil {
		setupErr = err
	}

	code := m.Run()

	if err := testcontainers.TerminateContainer(container); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate azurite container: %s\n", err)
	}
	os.Exit(code)
}

// startAzurite starts the blob service of Azurite and points account at it
func startAzurite(ctx context.Context) (testcontainers.Container, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        azuriteImage,
			Cmd:          []string{"azurite-blob", "--blobHost", "0.0.0.0", "--skipApiVersionCheck", "--loose"},
			ExposedPorts: []string{"10000/tcp"},
			WaitingFor: wait.ForLog("Azurite Blob service is successfully listening").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return container, fmt.Errorf("failed to start azurite: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return container, fmt.Errorf("failed to get azurite host: %w", err)
	}
	port, err := container.MappedPort(ctx, "10000/tcp")
	if err != nil {
		return container, fmt.Errorf("failed to get azurite port: %w", err)
	}

	account = blobfile.Account{
		Name:         azuriteAccountName,
		Key:          azuriteAccountKey,
		BlobEndpoint: fmt.Sprintf("http://%s:%s/%s", host, port.Port(), azuriteAccountName),
	}
	return container, nil
}

// newSession connects a session with its own staging dir and creates a fresh container for the test
func newSession(t *testing.T, opts ...blobfile.Option) (*blobfile.Session, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if setupErr != nil {
		t.Skipf("Skipping integration test, storage backend unavailable: %v", setupErr)
	}

	opts = append([]blobfile.Option{
		blobfile.WithStagingDir(t.TempDir()),
		blobfile.WithLogger(zap.NewNop()),
	}, opts...)
	s, err := blobfile.Connect(account, opts...)
	require.NoError(t, err)

	containerName := "it-" + uuid.NewString()
	require.NoError(t, s.CreateContainer(context.Background(), containerName))
	return s, containerName
}
