package bootstrap

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"chordring/internal/config"
)

// Route53Bootstrap discovers peers by listing SRV records in a hosted
// zone, and advertises this node by upserting its own SRV record.
type Route53Bootstrap struct {
	client       *route53.Client
	hostedZoneID string
	domainSuffix string
	ttl          int64
}

// NewRoute53Bootstrap builds a Route53Bootstrap using the default AWS
// credential chain.
func NewRoute53Bootstrap(cfg config.Route53Config) (*Route53Bootstrap, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := newClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Route53Bootstrap{
		client:       client,
		hostedZoneID: cfg.HostedZoneID,
		domainSuffix: strings.TrimSuffix(cfg.DomainSuffix, "."),
		ttl:          cfg.TTL,
	}, nil
}

func newClient(ctx context.Context) (*route53.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return route53.NewFromConfig(awsCfg), nil
}

// Discover lists SRV records under domainSuffix and resolves each
// target to one or more dialable endpoints.
func (r *Route53Bootstrap) Discover(ctx context.Context) ([]string, error) {
	var endpoints []string
	input := &route53.ListResourceRecordSetsInput{
		HostedZoneId: aws.String(r.hostedZoneID),
	}
	paginator := route53.NewListResourceRecordSetsPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list records: %w", err)
		}
		for _, rrset := range page.ResourceRecordSets {
			if rrset.Type != "SRV" {
				continue
			}
			if !strings.HasSuffix(strings.TrimSuffix(*rrset.Name, "."), r.domainSuffix) {
				continue
			}

			for _, rr := range rrset.ResourceRecords {
				var prio, weight, port int
				var target string
				if _, err := fmt.Sscanf(*rr.Value, "%d %d %d %s", &prio, &weight, &port, &target); err != nil {
					continue
				}
				target = strings.TrimSuffix(target, ".")

				ips, err := net.LookupHost(target)
				if err != nil {
					continue
				}
				for _, ip := range ips {
					endpoints = append(endpoints, fmt.Sprintf("%s:%d", ip, port))
				}
			}
		}
	}

	return endpoints, nil
}

// Register upserts an SRV record advertising self under this node's
// identifier.
func (r *Route53Bootstrap) Register(ctx context.Context, self SelfInfo) error {
	recordName := fmt.Sprintf("%s.%s.", self.Hash.ToHexString(), r.domainSuffix)
	host, port, err := net.SplitHostPort(self.Addr)
	if err != nil {
		return err
	}
	input := &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(r.hostedZoneID),
		ChangeBatch:  r.srvChangeBatch(types.ChangeActionUpsert, recordName, host, port),
	}
	_, err = r.client.ChangeResourceRecordSets(ctx, input)
	return err
}

// Deregister removes self's SRV record.
func (r *Route53Bootstrap) Deregister(ctx context.Context, self SelfInfo) error {
	recordName := fmt.Sprintf("%s.%s.", self.Hash.ToHexString(), r.domainSuffix)
	host, port, err := net.SplitHostPort(self.Addr)
	if err != nil {
		return err
	}
	input := &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(r.hostedZoneID),
		ChangeBatch:  r.srvChangeBatch(types.ChangeActionDelete, recordName, host, port),
	}
	_, err = r.client.ChangeResourceRecordSets(ctx, input)
	return err
}

func (r *Route53Bootstrap) srvChangeBatch(action types.ChangeAction, recordName, host, port string) *types.ChangeBatch {
	return &types.ChangeBatch{
		Changes: []types.Change{
			{
				Action: action,
				ResourceRecordSet: &types.ResourceRecordSet{
					Name: aws.String(recordName),
					Type: types.RRTypeSrv,
					TTL:  aws.Int64(r.ttl),
					ResourceRecords: []types.ResourceRecord{
						{Value: aws.String(fmt.Sprintf("0 0 %s %s.", port, host))},
					},
				},
			},
		},
	}
}
