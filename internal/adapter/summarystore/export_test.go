package summarystore

import "log/slog"

// NewMongoGatewayForTest exposes the finder-based constructor to black-box tests.
func NewMongoGatewayForTest(coll summaryFinder, logger *slog.Logger) *MongoGateway {
	return newMongoGateway(coll, logger)
}
