// Command tenantctl is the operator CLI: schema migrations, signing key
// maintenance and OAuth client registration.
package main

import (
	"context"
	"os"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/Abraxas-365/tenantry/pkg/config"
	"github.com/Abraxas-365/tenantry/pkg/database"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/fsx"
	"github.com/Abraxas-365/tenantry/pkg/fsx/fsxlocal"
	"github.com/Abraxas-365/tenantry/pkg/fsx/fsxs3"
	"github.com/Abraxas-365/tenantry/pkg/logx"
)

// loadConfig is swapped in tests.
var loadConfig = config.Load

var rootCmd = &cobra.Command{
	Use:           "tenantctl",
	Short:         "Tenantry operator commands",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(clientsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logx.WithError(err).Error("tenantctl failed")
		os.Exit(1)
	}
}

func openDB(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	return database.Connect(ctx, cfg.Database)
}

func openFileSystem(ctx context.Context, cfg config.StorageConfig) (fsx.FileSystem, error) {
	switch cfg.Mode {
	case "s3":
		awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, errx.Wrap(err, "failed to load AWS config", errx.TypeInternal)
		}
		return fsxs3.NewS3FileSystem(s3.NewFromConfig(awsCfg), cfg.Bucket, ""), nil
	case "local":
		local, err := fsxlocal.NewLocalFileSystem(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		return local, nil
	default:
		return nil, errx.Validation("unknown STORAGE_MODE").WithField("STORAGE_MODE", cfg.Mode)
	}
}
