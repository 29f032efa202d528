package dynamodb

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/NethermindEth/zksync-contract-worker/internal/domain"
)

// decodeRecord reconstructs a domain.Record from a raw DynamoDB item,
// following the schema documented in SPEC_FULL.md §6: ID (S), CreatedAt
// (S, RFC3339), Status (N), and — only once Done — a Data map nested under
// "Success" or "Failure".
func decodeRecord(item map[string]types.AttributeValue) (domain.Record, error) {
	idAV, ok := item[primaryKeyName]
	if !ok {
		return domain.Record{}, fmt.Errorf("item missing %s attribute", primaryKeyName)
	}
	idStr, ok := idAV.(*types.AttributeValueMemberS)
	if !ok {
		return domain.Record{}, fmt.Errorf("%s attribute is not a string", primaryKeyName)
	}
	id, err := domain.ParseJobID(idStr.Value)
	if err != nil {
		return domain.Record{}, fmt.Errorf("parse job id: %w", err)
	}

	statusAV, ok := item[statusAttribute]
	if !ok {
		return domain.Record{}, fmt.Errorf("item missing %s attribute", statusAttribute)
	}
	statusN, ok := statusAV.(*types.AttributeValueMemberN)
	if !ok {
		return domain.Record{}, fmt.Errorf("%s attribute is not numeric", statusAttribute)
	}
	status, err := parseStatus(statusN.Value)
	if err != nil {
		return domain.Record{}, err
	}

	rec := domain.Record{ID: id, Status: status}

	if createdAV, ok := item[createdAttribute]; ok {
		if createdS, ok := createdAV.(*types.AttributeValueMemberS); ok {
			t, err := time.Parse(time.RFC3339, createdS.Value)
			if err != nil {
				return domain.Record{}, fmt.Errorf("parse %s: %w", createdAttribute, err)
			}
			rec.CreatedAt = t
		}
	}

	if status == domain.StatusDone {
		dataAV, ok := item[dataAttribute]
		if !ok {
			return domain.Record{}, fmt.Errorf("item status Done but missing %s attribute", dataAttribute)
		}
		result, err := decodeTaskResult(dataAV)
		if err != nil {
			return domain.Record{}, err
		}
		rec.Data = &result
	}

	return rec, nil
}

func parseStatus(n string) (domain.Status, error) {
	switch n {
	case "0":
		return domain.StatusPending, nil
	case "1":
		return domain.StatusInProgress, nil
	case "2":
		return domain.StatusDone, nil
	default:
		return 0, fmt.Errorf("unknown status code %q", n)
	}
}

// encodeTaskResult renders a TaskResult into the Data attribute's nested-map
// shape: {"Success": {"Compile": [[kind,path,url], ...]}} or
// {"Success": {"Verify": message}} or {"Failure": [error_type, message]}.
func encodeTaskResult(result domain.TaskResult) (types.AttributeValue, error) {
	if result.IsSuccess() {
		inner := map[string]types.AttributeValue{}
		if result.Success == domain.SuccessCompile {
			inner["Compile"] = encodeArtifacts(result.Artifacts)
		} else {
			inner["Verify"] = &types.AttributeValueMemberS{Value: result.VerifyMessage}
		}
		return &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"Success": &types.AttributeValueMemberM{Value: inner},
		}}, nil
	}

	return &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
		"Failure": &types.AttributeValueMemberL{Value: []types.AttributeValue{
			&types.AttributeValueMemberS{Value: string(result.Kind)},
			&types.AttributeValueMemberS{Value: result.FailureMessage},
		}},
	}}, nil
}

func encodeArtifacts(artifacts []domain.ArtifactInfo) types.AttributeValue {
	list := make([]types.AttributeValue, 0, len(artifacts))
	for _, a := range artifacts {
		list = append(list, &types.AttributeValueMemberL{Value: []types.AttributeValue{
			&types.AttributeValueMemberS{Value: a.Kind.String()},
			&types.AttributeValueMemberS{Value: a.Path},
			&types.AttributeValueMemberS{Value: a.URL},
		}})
	}
	return &types.AttributeValueMemberL{Value: list}
}

func decodeTaskResult(av types.AttributeValue) (domain.TaskResult, error) {
	m, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return domain.TaskResult{}, fmt.Errorf("Data attribute is not a map")
	}

	if successAV, ok := m.Value["Success"]; ok {
		successM, ok := successAV.(*types.AttributeValueMemberM)
		if !ok {
			return domain.TaskResult{}, fmt.Errorf("Success payload is not a map")
		}
		if compileAV, ok := successM.Value["Compile"]; ok {
			artifacts, err := decodeArtifacts(compileAV)
			if err != nil {
				return domain.TaskResult{}, err
			}
			return domain.NewCompileSuccess(artifacts), nil
		}
		if verifyAV, ok := successM.Value["Verify"]; ok {
			s, ok := verifyAV.(*types.AttributeValueMemberS)
			if !ok {
				return domain.TaskResult{}, fmt.Errorf("Verify payload is not a string")
			}
			return domain.NewVerifySuccess(s.Value), nil
		}
		return domain.TaskResult{}, fmt.Errorf("Success payload missing Compile/Verify variant")
	}

	if failureAV, ok := m.Value["Failure"]; ok {
		l, ok := failureAV.(*types.AttributeValueMemberL)
		if !ok || len(l.Value) != 2 {
			return domain.TaskResult{}, fmt.Errorf("Failure payload malformed")
		}
		kind, ok1 := l.Value[0].(*types.AttributeValueMemberS)
		msg, ok2 := l.Value[1].(*types.AttributeValueMemberS)
		if !ok1 || !ok2 {
			return domain.TaskResult{}, fmt.Errorf("Failure payload entries not strings")
		}
		return domain.NewFailure(domain.ErrorType(kind.Value), msg.Value), nil
	}

	return domain.TaskResult{}, fmt.Errorf("Data payload missing Success/Failure variant")
}

func decodeArtifacts(av types.AttributeValue) ([]domain.ArtifactInfo, error) {
	l, ok := av.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("Compile payload is not a list")
	}
	artifacts := make([]domain.ArtifactInfo, 0, len(l.Value))
	for _, entryAV := range l.Value {
		entry, ok := entryAV.(*types.AttributeValueMemberL)
		if !ok || len(entry.Value) != 3 {
			return nil, fmt.Errorf("artifact entry malformed")
		}
		kind, ok1 := entry.Value[0].(*types.AttributeValueMemberS)
		path, ok2 := entry.Value[1].(*types.AttributeValueMemberS)
		url, ok3 := entry.Value[2].(*types.AttributeValueMemberS)
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("artifact entry fields not strings")
		}
		artifacts = append(artifacts, domain.ArtifactInfo{
			Kind: parseArtifactKind(kind.Value),
			Path: path.Value,
			URL:  url.Value,
		})
	}
	return artifacts, nil
}

func parseArtifactKind(s string) domain.ArtifactKind {
	switch s {
	case "Contract":
		return domain.ArtifactContract
	case "Dbg":
		return domain.ArtifactDbg
	default:
		return domain.ArtifactUnknown
	}
}
