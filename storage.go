package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/s3"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// Storage holds the artifact bucket and the bucket its access logs land
// in. Public access is blocked on both; the log bucket logs nowhere.
type Storage struct {
	ArtifactBucket *s3.BucketV2
	LogBucket      *s3.BucketV2
}

func NewStorage(ctx *pulumi.Context, cfg *Config) (*Storage, error) {
	name := cfg.Project.Name

	logBucket, err := s3.NewBucketV2(ctx, name+"-access-logs", &s3.BucketV2Args{
		BucketPrefix: pulumi.String(name + "-access-logs-"),
		ForceDestroy: pulumi.Bool(true),
		Tags:         resourceTags(cfg, name+"-access-logs"),
	})
	if err != nil {
		return nil, err
	}
	if err := hardenBucket(ctx, name+"-access-logs", logBucket); err != nil {
		return nil, err
	}
	ownership, err := s3.NewBucketOwnershipControls(ctx, name+"-access-logs-ownership", &s3.BucketOwnershipControlsArgs{
		Bucket: logBucket.ID(),
		Rule: &s3.BucketOwnershipControlsRuleArgs{
			ObjectOwnership: pulumi.String("ObjectWriter"),
		},
	})
	if err != nil {
		return nil, err
	}
	_, err = s3.NewBucketAclV2(ctx, name+"-access-logs-acl", &s3.BucketAclV2Args{
		Bucket: logBucket.ID(),
		Acl:    pulumi.String("log-delivery-write"),
	}, pulumi.DependsOn([]pulumi.Resource{ownership}))
	if err != nil {
		return nil, err
	}

	artifactBucket, err := s3.NewBucketV2(ctx, name+"-artifacts", &s3.BucketV2Args{
		BucketPrefix: pulumi.String(name + "-artifacts-"),
		ForceDestroy: pulumi.Bool(true),
		Tags:         resourceTags(cfg, name+"-artifacts"),
	})
	if err != nil {
		return nil, err
	}
	if err := hardenBucket(ctx, name+"-artifacts", artifactBucket); err != nil {
		return nil, err
	}
	_, err = s3.NewBucketVersioningV2(ctx, name+"-artifacts-versioning", &s3.BucketVersioningV2Args{
		Bucket: artifactBucket.ID(),
		VersioningConfiguration: &s3.BucketVersioningV2VersioningConfigurationArgs{
			Status: pulumi.String("Enabled"),
		},
	})
	if err != nil {
		return nil, err
	}
	_, err = s3.NewBucketLoggingV2(ctx, name+"-artifacts-logging", &s3.BucketLoggingV2Args{
		Bucket:       artifactBucket.ID(),
		TargetBucket: logBucket.ID(),
		TargetPrefix: pulumi.String("artifacts/"),
	})
	if err != nil {
		return nil, err
	}

	return &Storage{ArtifactBucket: artifactBucket, LogBucket: logBucket}, nil
}

func hardenBucket(ctx *pulumi.Context, name string, bucket *s3.BucketV2) error {
	_, err := s3.NewBucketPublicAccessBlock(ctx, name+"-pab", &s3.BucketPublicAccessBlockArgs{
		Bucket:                bucket.ID(),
		BlockPublicAcls:       pulumi.Bool(true),
		BlockPublicPolicy:     pulumi.Bool(true),
		IgnorePublicAcls:      pulumi.Bool(true),
		RestrictPublicBuckets: pulumi.Bool(true),
	})
	if err != nil {
		return err
	}
	_, err = s3.NewBucketServerSideEncryptionConfigurationV2(ctx, name+"-sse", &s3.BucketServerSideEncryptionConfigurationV2Args{
		Bucket: bucket.ID(),
		Rules: s3.BucketServerSideEncryptionConfigurationV2RuleArray{
			&s3.BucketServerSideEncryptionConfigurationV2RuleArgs{
				ApplyServerSideEncryptionByDefault: &s3.BucketServerSideEncryptionConfigurationV2RuleApplyServerSideEncryptionByDefaultArgs{
					SseAlgorithm: pulumi.String("AES256"),
				},
			},
		},
	})
	return err
}
