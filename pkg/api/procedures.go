package api

const (
	// RootServiceGenerateKeysProcedure is the HTTP path for the Root GenerateKeys RPC.
	RootServiceGenerateKeysProcedure = "/trustchain.v1.RootService/GenerateKeys"
	// RootServiceIssueRootCertificateProcedure is the HTTP path for the IssueRootCertificate RPC.
	RootServiceIssueRootCertificateProcedure = "/trustchain.v1.RootService/IssueRootCertificate"
	// RootServiceRootCertificateProcedure is the HTTP path for the RootCertificate RPC.
	RootServiceRootCertificateProcedure = "/trustchain.v1.RootService/RootCertificate"
	// RootServiceSignIntermediateProcedure is the HTTP path for the SignIntermediate RPC.
	RootServiceSignIntermediateProcedure = "/trustchain.v1.RootService/SignIntermediate"

	// IntermediateServiceGenerateKeysProcedure is the HTTP path for the intermediate GenerateKeys RPC.
	IntermediateServiceGenerateKeysProcedure = "/trustchain.v1.IntermediateService/GenerateKeys"
	// IntermediateServiceFetchRootCertificateProcedure is the HTTP path for the FetchRootCertificate RPC.
	IntermediateServiceFetchRootCertificateProcedure = "/trustchain.v1.IntermediateService/FetchRootCertificate"
	// IntermediateServiceRequestCertificateProcedure is the HTTP path for the RequestCertificate RPC.
	IntermediateServiceRequestCertificateProcedure = "/trustchain.v1.IntermediateService/RequestCertificate"
	// IntermediateServiceCertificatesProcedure is the HTTP path for the Certificates RPC.
	IntermediateServiceCertificatesProcedure = "/trustchain.v1.IntermediateService/Certificates"
	// IntermediateServiceIssueClientCertificateProcedure is the HTTP path for the IssueClientCertificate RPC.
	IntermediateServiceIssueClientCertificateProcedure = "/trustchain.v1.IntermediateService/IssueClientCertificate"

	// ClientServiceFetchCertificatesProcedure is the HTTP path for the FetchCertificates RPC.
	ClientServiceFetchCertificatesProcedure = "/trustchain.v1.ClientService/FetchCertificates"
	// ClientServiceEnrollProcedure is the HTTP path for the Enroll RPC.
	ClientServiceEnrollProcedure = "/trustchain.v1.ClientService/Enroll"
	// ClientServiceSendMessageProcedure is the HTTP path for the SendMessage RPC.
	ClientServiceSendMessageProcedure = "/trustchain.v1.ClientService/SendMessage"
	// ClientServiceReceiveMessageProcedure is the HTTP path for the ReceiveMessage RPC.
	ClientServiceReceiveMessageProcedure = "/trustchain.v1.ClientService/ReceiveMessage"
	// ClientServiceLastMessageProcedure is the HTTP path for the LastMessage RPC.
	ClientServiceLastMessageProcedure = "/trustchain.v1.ClientService/LastMessage"
)

// signingProcedures are subject to the signing rate limit.
var signingProcedures = map[string]bool{
	RootServiceSignIntermediateProcedure:               true,
	IntermediateServiceIssueClientCertificateProcedure: true,
}
