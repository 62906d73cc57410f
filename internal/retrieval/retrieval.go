// Package retrieval 提供面向知识增强的文档检索能力。真正的向量索引
// 由外部文档存储负责，这里只约定检索接口与可替换的后端实现。
package retrieval

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// Document 是检索返回的一段知识。
type Document struct {
	ID       string            `json:"id,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Retriever 定义相似检索的统一接口。实现必须支持并发读。
type Retriever interface {
	// Search 返回与查询最相关的 k 篇文档，按相关性降序。
	Search(ctx context.Context, query string, k int) ([]Document, error)
	// AddDocuments 写入文档并返回生成的文档 ID。
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)
}

// tokenize 将文本切分为小写词元，用于词面重合度打分。
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// score 计算查询词元与文档的重合度。打分是嵌入相似度的词面近似，
// 接口语义与真正的向量检索一致。
func score(queryTokens []string, content string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	haystack := strings.ToLower(content)
	matched := 0
	for _, token := range queryTokens {
		if strings.Contains(haystack, token) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

// rank 对候选文档打分并返回前 k 篇。
func rank(query string, docs []Document, k int) []Document {
	if k <= 0 {
		k = 3
	}
	tokens := tokenize(query)

	type scored struct {
		doc   Document
		value float64
		index int
	}
	candidates := make([]scored, 0, len(docs))
	for i, doc := range docs {
		value := score(tokens, doc.Content)
		if value <= 0 {
			continue
		}
		candidates = append(candidates, scored{doc: doc, value: value, index: i})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].value != candidates[j].value {
			return candidates[i].value > candidates[j].value
		}
		return candidates[i].index < candidates[j].index
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	results := make([]Document, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, c.doc)
	}
	return results
}
